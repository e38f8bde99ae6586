package domain

// Events emitted by the core for the presentation layer to render. The core
// never produces UI text; it hands over structs and lets the adapter decide
// how (and whether) to show them.

// AssignmentOffered tells a user a chain awaits their contribution.
// NeededOffset is the timezone the slot represents; offers are not restricted
// to users in that zone, so presentation shows it as information only.
type AssignmentOffered struct {
	Assignment   Assignment
	Chain        Chain
	NeededOffset int
}

// ChainCompleted marks a chain's transition out of active, full or not.
type ChainCompleted struct {
	Chain Chain
}

// ChainDelivered carries the finished chain and its blocks in slot order.
type ChainDelivered struct {
	Chain  Chain
	Blocks []Block
}
