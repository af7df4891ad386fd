package menu

import "context"

// MenuOption represents a selectable option shown to the user.
type MenuOption struct {
	Label       string
	Description string
	Handler     func(ctx context.Context) error
	Color       string
	Enabled     bool
}

// Actions are the operations the menu can trigger.
type Actions struct {
	Bootstrap func(ctx context.Context) error
	Load      func(ctx context.Context, force bool) error
	Status    func(ctx context.Context) error
	History   func(ctx context.Context) error
}
