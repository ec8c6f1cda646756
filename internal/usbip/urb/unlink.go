package urb

import (
	"usbipd/internal/usbip/errcode"
	"usbipd/internal/usbip/wire"
)

// Unlink validates an UNLINK request and attempts to cancel the
// targeted SUBMIT, returning exactly one RET_UNLINK reply. It never
// emits the corresponding RET_SUBMIT; the submit processor owns that
// completion once cancellation propagates (spec.md §4.5).
func (p *Processor) Unlink(cmd wire.CmdUnlink) wire.RetUnlink {
	if err := validateUnlink(cmd); err != nil {
		return wire.RetUnlink{
			Seqnum:       cmd.Seqnum,
			UnlinkSeqnum: cmd.UnlinkSeqnum,
			Devid:        cmd.Devid,
			Direction:    cmd.Direction,
			Ep:           cmd.Ep,
			Status:       int32(errcode.EINVAL),
		}
	}

	status := errcode.ENOENT
	if p.registry.Cancel(cmd.UnlinkSeqnum) {
		status = errcode.Success
		p.transport.Cancel(cmd.UnlinkSeqnum)
	}

	return wire.RetUnlink{
		Seqnum:       cmd.Seqnum,
		UnlinkSeqnum: cmd.UnlinkSeqnum,
		Devid:        cmd.Devid,
		Direction:    cmd.Direction,
		Ep:           cmd.Ep,
		Status:       int32(status),
	}
}

func validateUnlink(cmd wire.CmdUnlink) error {
	if cmd.Direction != wire.DirOut && cmd.Direction != wire.DirIn {
		return &ValidationError{Reason: "direction must be 0 or 1"}
	}
	if cmd.Ep > 0xFF {
		return &ValidationError{Reason: "ep out of range"}
	}
	if cmd.UnlinkSeqnum == cmd.Seqnum {
		return &ValidationError{Reason: "unlinkSeqnum must differ from seqnum"}
	}
	if cmd.UnlinkSeqnum == 0 {
		return &ValidationError{Reason: "unlinkSeqnum must be nonzero"}
	}
	return nil
}
