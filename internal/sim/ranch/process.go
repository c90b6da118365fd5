package ranch

import (
	"github.com/sirupsen/logrus"

	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/entropy"
	"pumpelf.ai/internal/sim/model"
)

// Process applies one decoded command. Rule rejections come back as
// *protocol.Error; anything else is an infrastructure failure.
func (e *Engine) Process(cmd protocol.Command) error {
	err := e.dispatch(cmd)
	code := protocol.CodeOf(err)
	e.obs.CommandApplied(cmd.Kind, code)
	if err != nil {
		fields := logrus.Fields{
			"player": model.PlayerID(cmd.Player).String(),
			"kind":   string(cmd.Kind),
			"nonce":  cmd.Nonce,
			"code":   code.String(),
		}
		if code == protocol.CodeInternal {
			e.log.WithFields(fields).WithError(err).Error("command failed")
		} else {
			e.log.WithFields(fields).WithError(err).Debug("command rejected")
		}
	}
	return err
}

func (e *Engine) dispatch(cmd protocol.Command) error {
	pid := model.PlayerID(cmd.Player)
	switch cmd.Kind {
	case protocol.KindTick:
		if e.hasAdmin && !e.isAdmin(pid) {
			return protocol.Fail(protocol.CodeAdminRequired)
		}
		next, err := entropy.ParseCommitment(cmd.Commitment)
		if err != nil {
			return protocol.Errorf(protocol.CodeBadCommand, "%v", err)
		}
		_, err = e.Advance(cmd.Reveal, next)
		return err
	case protocol.KindInstallPlayer:
		return e.InstallPlayer(pid, cmd.Nonce)
	case protocol.KindBuyElf:
		_, err := e.BuyElf(pid, cmd.Nonce, cmd.RanchID, cmd.ElfType)
		return err
	case protocol.KindFeedElf:
		return e.FeedElf(pid, cmd.Nonce, cmd.RanchID, cmd.ElfID, cmd.PropID)
	case protocol.KindTreatElf:
		return e.TreatElf(pid, cmd.Nonce, cmd.RanchID, cmd.ElfID, cmd.PropID)
	case protocol.KindCleanRanch:
		return e.CleanRanch(pid, cmd.Nonce, cmd.RanchID)
	case protocol.KindCollectGold:
		_, err := e.CollectGold(pid, cmd.Nonce, cmd.RanchID, cmd.ElfID)
		return err
	case protocol.KindSellElf:
		_, err := e.SellElf(pid, cmd.Nonce, cmd.RanchID, cmd.ElfID)
		return err
	case protocol.KindBuySlot:
		return e.BuySlot(pid, cmd.Nonce, cmd.RanchID)
	case protocol.KindBuyProp:
		return e.BuyProp(pid, cmd.Nonce, cmd.PropID, cmd.Currency)
	case protocol.KindDeposit:
		if cmd.Target == nil {
			return protocol.Errorf(protocol.CodeBadCommand, "deposit without target")
		}
		return e.Deposit(pid, cmd.Nonce, model.PlayerID(*cmd.Target), cmd.Amount, cmd.Currency)
	case protocol.KindWithdraw:
		return e.Withdraw(pid, cmd.Nonce, cmd.Amount, cmd.Address)
	default:
		return protocol.Errorf(protocol.CodeBadCommand, "unknown kind %q", cmd.Kind)
	}
}
