package domain

// Tool names exposed to the remote model. The dialogue machine
// dispatches on these and the provider declares them verbatim.
const (
	ToolInitiateAddItem       = "initiateAddItem"
	ToolProvideItemQuantity   = "provideItemQuantity"
	ToolProvideItemPrice      = "provideItemPrice"
	ToolProvideItemExpiryDate = "provideItemExpiryDate"
	ToolRemoveItem            = "removeItem"
	ToolQueryInventory        = "queryInventory"
)
