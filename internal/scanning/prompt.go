package scanning

import (
	"encoding/json"

	"github.com/google/generative-ai-go/genai"
)

// billPrompt is the shared prompt used by all providers for reading bills
const billPrompt = `You are an expert OCR system specializing in utility bills from ANY provider. Your primary goal is to analyze the provided image, even if it is of low quality, and extract the required information with high accuracy.

**Instructions:**
- Analyze the provided utility bill image and extract the information below.
- Format your response strictly as a JSON object that adheres to the provided schema. Do not include any introductory text, explanations, or markdown formatting.
- **Data in Charts**: Carefully estimate the values from the bar heights relative to the y-axis if exact numbers aren't present.
- **Line Items**: Use negative amounts for payments and credits.
- **Confidence Score**: Based on the image clarity, provide a confidence score between 0.0 (not confident) and 1.0 (very confident).
- **Final Check**: Ensure every required field in the schema is present. If an optional field is not found, omit it from the final JSON.`

// userInstruction accompanies the image for chat-style providers
const userInstruction = "Analyze this utility bill image."

func str(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func num(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: description}
}

// billSchema constrains the model's output. Gemini takes it natively; the
// local provider gets it as text inside the system prompt.
var billSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"accountName":         str("Account holder's full name, if available."),
		"accountNumber":       str("The account number."),
		"serviceAddress":      str("The full service address, if available."),
		"statementDate":       str("The main date of the bill statement (e.g., 'October 5, 2017')."),
		"servicePeriodStart":  str("The start date of the service period, if available (e.g., 'MM/DD/YYYY')."),
		"servicePeriodEnd":    str("The end date of the service period, if available (e.g., 'MM/DD/YYYY')."),
		"dueDate":             str("The payment due date, if available."),
		"totalCurrentCharges": num("The total amount due for the current period."),
		"confidenceScore":     num("A score from 0.0 to 1.0 representing confidence in the extracted data's accuracy based on image quality. 1.0 is highest confidence."),
		"usageCharts": {
			Type:        genai.TypeArray,
			Description: "An array of all usage charts found on the bill.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title": str("The title of the chart."),
					"unit":  str("The unit of measurement for the usage (e.g., kWh, m³)."),
					"data": {
						Type:        genai.TypeArray,
						Description: "The monthly data points from the chart.",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"month": str("Abbreviated month name (e.g., Oct, Nov)."),
								"usage": {
									Type:        genai.TypeArray,
									Description: "Usage values for each year shown in the chart.",
									Items: &genai.Schema{
										Type: genai.TypeObject,
										Properties: map[string]*genai.Schema{
											"year":  str("The year of the usage value."),
											"value": num("The numerical usage value for that year."),
										},
										Required: []string{"year", "value"},
									},
								},
							},
							Required: []string{"month", "usage"},
						},
					},
				},
				Required: []string{"title", "unit", "data"},
			},
		},
		"lineItems": {
			Type:        genai.TypeArray,
			Description: "All individual line items from the charges/details section.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"description": str("The description of the charge or credit."),
					"amount":      num("The corresponding amount. Use negative numbers for payments or credits."),
				},
				Required: []string{"description", "amount"},
			},
		},
	},
	Required: []string{"accountNumber", "totalCurrentCharges", "usageCharts", "lineItems"},
}

var schemaTypeNames = map[genai.Type]string{
	genai.TypeString:  "string",
	genai.TypeNumber:  "number",
	genai.TypeInteger: "integer",
	genai.TypeBoolean: "boolean",
	genai.TypeArray:   "array",
	genai.TypeObject:  "object",
}

// jsonSchema converts s to a JSON Schema document
func jsonSchema(s *genai.Schema) map[string]any {
	out := map[string]any{"type": schemaTypeNames[s.Type]}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Items != nil {
		out["items"] = jsonSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = jsonSchema(p)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// systemPrompt embeds the prompt and schema for providers without a native
// structured output mode.
func systemPrompt() string {
	schema, _ := json.Marshal(jsonSchema(billSchema))
	return "You are an API that exclusively returns JSON. Do not include any conversational text, explanations, or markdown formatting like ```json. " +
		"Your entire response must be a single, raw JSON object that strictly adheres to the provided schema.\n" +
		"User Request: " + billPrompt + "\n" +
		"JSON Schema: " + string(schema)
}
