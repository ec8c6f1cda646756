package wire

import "fmt"

// Describe renders a short, one-line human summary of a decoded header
// plus whatever fields a trace logger cares about, the way a protocol
// analyzer prints a frame. It never affects wire behavior; only the
// optional debug-level trace logging in the dispatcher calls it.
func Describe(h Header, extra ...any) string {
	name := commandName(h.Command)
	if len(extra) == 0 {
		return fmt.Sprintf("%s status=%d", name, int32(h.Status))
	}
	return fmt.Sprintf("%s status=%d %v", name, int32(h.Status), extra)
}

func commandName(cmd uint16) string {
	switch cmd {
	case OpReqDevlist:
		return "OP_REQ_DEVLIST"
	case OpRepDevlist:
		return "OP_REP_DEVLIST"
	case OpReqImport:
		return "OP_REQ_IMPORT"
	case OpRepImport: // same value as RetSubmitOp; only the connection phase tells them apart
		return "OP_REP_IMPORT/RET_SUBMIT"
	case CmdSubmitOp:
		return "CMD_SUBMIT"
	case CmdUnlinkOp:
		return "CMD_UNLINK"
	case RetUnlinkOp:
		return "RET_UNLINK"
	default:
		return fmt.Sprintf("UNKNOWN(%#04x)", cmd)
	}
}
