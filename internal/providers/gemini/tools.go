package gemini

import (
	"google.golang.org/genai"

	"stockpilot/internal/domain"
)

// ToolDeclarations describes the inventory capabilities exposed to the
// model. The multi-step add flow is deliberate: the model collects one
// slot at a time so spoken corrections stay cheap.
func ToolDeclarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        domain.ToolInitiateAddItem,
			Description: "Start adding an item to the inventory. Call this as soon as the user names an item to add, even before quantity or price are known.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"itemName": {
						Type:        genai.TypeString,
						Description: "Name of the item to add.",
					},
					"quantity": {
						Type:        genai.TypeNumber,
						Description: "Number of units, if the user already said it.",
					},
				},
				Required: []string{"itemName"},
			},
		},
		{
			Name:        domain.ToolProvideItemQuantity,
			Description: "Supply the quantity for the item currently being added.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"quantity": {
						Type:        genai.TypeNumber,
						Description: "Number of units.",
					},
				},
				Required: []string{"quantity"},
			},
		},
		{
			Name:        domain.ToolProvideItemPrice,
			Description: "Supply the per-unit price for the item currently being added.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"price": {
						Type:        genai.TypeNumber,
						Description: "Price per unit.",
					},
				},
				Required: []string{"price"},
			},
		},
		{
			Name:        domain.ToolProvideItemExpiryDate,
			Description: "Supply the expiry date for the item currently being added. Only used for stores that track expiry.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"expiryDate": {
						Type:        genai.TypeString,
						Description: "Expiry date in DD-MM-YYYY form.",
					},
				},
				Required: []string{"expiryDate"},
			},
		},
		{
			Name:        domain.ToolRemoveItem,
			Description: "Remove a quantity of an item from the inventory, for example after a sale.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"itemName": {
						Type:        genai.TypeString,
						Description: "Name of the item to remove.",
					},
					"quantity": {
						Type:        genai.TypeNumber,
						Description: "Number of units to remove.",
					},
				},
				Required: []string{"itemName", "quantity"},
			},
		},
		{
			Name:        domain.ToolQueryInventory,
			Description: "Answer a question about current inventory, like stock levels or prices.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "The user's question about the inventory.",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}
