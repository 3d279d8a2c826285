package strategy

import (
	"quote-trigger-go/config"
	"quote-trigger-go/order"
)

// Kind 策略变体。
type Kind int

const (
	KindNone Kind = iota
	KindSimple
	KindEntryOnly
	KindExitOnly
	KindFlagDriven
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindEntryOnly:
		return "entry_only"
	case KindExitOnly:
		return "exit_only"
	case KindFlagDriven:
		return "flag_driven"
	default:
		return "none"
	}
}

// Plan 变体及其参数（EntryOnly 的方向）。
type Plan struct {
	Kind Kind
	Side order.Side
}

// PlanFor maps the configured order type; unmapped values give KindNone.
func PlanFor(orderType int) Plan {
	switch orderType {
	case config.OrderTypeSimple:
		return Plan{Kind: KindSimple}
	case config.OrderTypeEntryBuy:
		return Plan{Kind: KindEntryOnly, Side: order.SideBuy}
	case config.OrderTypeEntrySell:
		return Plan{Kind: KindEntryOnly, Side: order.SideSell}
	case config.OrderTypeExitOnly:
		return Plan{Kind: KindExitOnly}
	case config.OrderTypeFlag:
		return Plan{Kind: KindFlagDriven}
	default:
		return Plan{Kind: KindNone}
	}
}

// FlagAction 指令标志对应的动作路径。
type FlagAction int

const (
	FlagNone FlagAction = iota
	FlagEntryBuy
	FlagEntrySell
	FlagEntryBuyExit
	FlagEntrySellExit
	FlagExitBuy
	FlagExitSell
)

// FlagActionOf 0..6 一一对应，其余值为 FlagNone。
func FlagActionOf(flag uint8) FlagAction {
	if flag > uint8(FlagExitSell) {
		return FlagNone
	}
	return FlagAction(flag)
}

func (a FlagAction) String() string {
	switch a {
	case FlagEntryBuy:
		return "entry_buy"
	case FlagEntrySell:
		return "entry_sell"
	case FlagEntryBuyExit:
		return "entry_buy_exit"
	case FlagEntrySellExit:
		return "entry_sell_exit"
	case FlagExitBuy:
		return "exit_buy"
	case FlagExitSell:
		return "exit_sell"
	default:
		return "none"
	}
}

// Side of the action; exit actions report the side of the position being closed.
func (a FlagAction) Side() order.Side {
	switch a {
	case FlagEntryBuy, FlagEntryBuyExit, FlagExitBuy:
		return order.SideBuy
	case FlagEntrySell, FlagEntrySellExit, FlagExitSell:
		return order.SideSell
	default:
		return order.SideNone
	}
}

func (a FlagAction) entry() bool {
	switch a {
	case FlagEntryBuy, FlagEntrySell, FlagEntryBuyExit, FlagEntrySellExit:
		return true
	}
	return false
}

func (a FlagAction) exit() bool {
	switch a {
	case FlagEntryBuyExit, FlagEntrySellExit, FlagExitBuy, FlagExitSell:
		return true
	}
	return false
}
