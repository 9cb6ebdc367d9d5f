package polymarket

// APIOrderResult is the CLOB response after posting an order. Amounts are
// decimal strings; for a buy, makingAmount is the USDC spent and takingAmount
// the outcome tokens received.
type APIOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	Status       string `json:"status"` // "matched", "live", "delayed", "unmatched"
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
}

// BalanceAllowanceResponse is the response of GET /balance-allowance. The
// balance is micro-USDC (6 decimals) as a decimal string.
type BalanceAllowanceResponse struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}
