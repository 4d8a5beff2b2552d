package inventory

import "fmt"

// Action is the direction of a stock change.
type Action string

const (
	ActionAdd      Action = "add"
	ActionSubtract Action = "subtract"
)

// Inverse returns the action that undoes a.
func (a Action) Inverse() Action {
	if a == ActionAdd {
		return ActionSubtract
	}

	return ActionAdd
}

// Command is a reservation command sent to the inventory service.
type Command struct {
	SKU      string `json:"sku"`
	Action   Action `json:"action"`
	Quantity int    `json:"quantity"`

	// OrderNumber correlates the command with its order. It travels in message properties, not in the body.
	OrderNumber string `json:"-"`
}

// Inverse returns the compensating command.
func (c Command) Inverse() Command {
	c.Action = c.Action.Inverse()

	return c
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s %d", c.Action, c.SKU, c.Quantity)
}
