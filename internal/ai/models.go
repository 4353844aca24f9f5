package ai

// Model metadata and pricing used for run summaries. Prices are
// approximate USD per 1K tokens and only feed the cost estimate.

type ModelInfo struct {
	Name          string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	"llama-3.3-70b-versatile":      {Name: "llama-3.3-70b-versatile", ContextTokens: 131072, InputPerK: 0.00059, OutputPerK: 0.00079},
	"llama-3.1-8b-instant":         {Name: "llama-3.1-8b-instant", ContextTokens: 131072, InputPerK: 0.00005, OutputPerK: 0.00008},
	"gpt-4o-mini":                  {Name: "gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	"gpt-4o":                       {Name: "gpt-4o", ContextTokens: 128000, InputPerK: 0.0025, OutputPerK: 0.01},
	"claude-3-5-sonnet-20241022":   {Name: "claude-3-5-sonnet-20241022", ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
	"claude-3-haiku-20240307":      {Name: "claude-3-haiku-20240307", ContextTokens: 200000, InputPerK: 0.00025, OutputPerK: 0.00125},
	"gemini-pro":                   {Name: "gemini-pro", ContextTokens: 32760, InputPerK: 0.0005, OutputPerK: 0.0015},
	"gemini-1.5-flash":             {Name: "gemini-1.5-flash", ContextTokens: 1000000, InputPerK: 0.000075, OutputPerK: 0.0003},
	"gemini-1.5-pro":               {Name: "gemini-1.5-pro", ContextTokens: 2000000, InputPerK: 0.00125, OutputPerK: 0.005},
	"mistral-tiny":                 {Name: "mistral-tiny", ContextTokens: 32000, InputPerK: 0.00025, OutputPerK: 0.00025},
	"mistral-small-latest":         {Name: "mistral-small-latest", ContextTokens: 32000, InputPerK: 0.0002, OutputPerK: 0.0006},
	"HuggingFaceH4/zephyr-7b-beta": {Name: "HuggingFaceH4/zephyr-7b-beta", ContextTokens: 32768},
	"openai/gpt-4o-mini":           {Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	"anthropic/claude-3.5-sonnet":  {Name: "anthropic/claude-3.5-sonnet", ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015},
	"deepseek/deepseek-r1:free":    {Name: "deepseek/deepseek-r1:free", ContextTokens: 128000},
	"llama3":                       {Name: "llama3", ContextTokens: 8192},
	"llama3.1:8b-instruct":         {Name: "llama3.1:8b-instruct", ContextTokens: 8192},
	"mistral:7b-instruct":          {Name: "mistral:7b-instruct", ContextTokens: 8192},
	"phi3:mini-4k-instruct":        {Name: "phi3:mini-4k-instruct", ContextTokens: 4096},
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}
