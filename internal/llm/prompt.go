package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/finbot/internal/model"
)

const systemPrompt = "You are a financial assistant API that outputs strict JSON."

// buildPrompt creates the intent extraction prompt for one chat message.
func buildPrompt(text string) string {
	var b strings.Builder

	b.WriteString("### ROLE\n")
	b.WriteString("You are a strict data parsing assistant. Extract structured financial data from the input text and output valid JSON.\n\n")

	b.WriteString("### INPUT TEXT\n")
	fmt.Fprintf(&b, "%q\n\n", text)

	b.WriteString("### RULES\n")
	b.WriteString("1. Output values must be in English only. Translate anything else (\"Gạo\" becomes \"Rice\").\n")
	b.WriteString("2. \"item\" is the specific product or service. Never return \"None\", \"Unknown\" or null. For \"Uber 5$\" the item is \"Uber\".\n")
	b.WriteString("3. \"type\" is one of:\n")
	b.WriteString("   - set_limit: the text sets a budget (\"Limit\", \"Budget\", \"Hạn mức\").\n")
	b.WriteString("   - add_sub: the text adds a recurring payment (\"Sub\", \"Netflix\", \"monthly\", \"/mo\", \"mỗi tháng\").\n")
	b.WriteString("   - cancel_sub: the text stops a recurring payment (\"Cancel\", \"Unsub\", \"Stop\"). Put the service in \"item\".\n")
	b.WriteString("   - expense: any other one-time purchase.\n")
	fmt.Fprintf(&b, "4. \"category\" must be one of: [%s].\n", strings.Join(model.CategoryNames(), ", "))
	b.WriteString("5. \"amount\" is numeric only (\"5$\" is 5). Convert every currency to USD (\"50k\" usually means 50000 VND). Set \"currency\" to \"USD\".\n\n")

	b.WriteString("### EXAMPLES\n")
	b.WriteString(`Input: "Quà cho bạn gái 300$"` + "\n")
	b.WriteString(`Output: {"type": "expense", "item": "Gift for girlfriend", "amount": 300, "currency": "USD", "category": "Shopping"}` + "\n")
	b.WriteString(`Input: "Uber 5$"` + "\n")
	b.WriteString(`Output: {"type": "expense", "item": "Uber", "amount": 5, "currency": "USD", "category": "Transport"}` + "\n")
	b.WriteString(`Input: "Digital ocean 4$ tiền vps mỗi tháng"` + "\n")
	b.WriteString(`Output: {"type": "add_sub", "item": "Digital Ocean VPS", "amount": 4, "currency": "USD", "category": "Subscription"}` + "\n")
	b.WriteString(`Input: "Limit 500"` + "\n")
	b.WriteString(`Output: {"type": "set_limit", "item": "Weekly limit", "amount": 500, "currency": "USD", "category": "Living/Utilities"}` + "\n\n")

	b.WriteString("### OUTPUT FORMAT\n")
	b.WriteString("Return ONLY the raw JSON object. No markdown formatting, no explanations.\n")

	return b.String()
}
