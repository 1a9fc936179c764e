package rail

import (
	"context"
	"fmt"
)

// StatusSuccess is the only response code the rail uses for success.
const StatusSuccess = "00"

// statusNotFound is returned by the status endpoint for an unknown reference.
const statusNotFound = "108"

// Rail is the external banking partner as seen by the wallet.
type Rail interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResponse, error)
	TransactionStatus(ctx context.Context, reference string) (*StatusResult, error)
	Balance(ctx context.Context, accountNumber string) (int64, error)
	CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error)
}

type TransferRequest struct {
	SourceAccount       string `json:"sourceAccount"`
	DestinationAccount  string `json:"destinationAccount"`
	DestinationBankCode string `json:"destinationBankCode"`
	AmountMinorUnits    int64  `json:"amountMinorUnits"`
	Reference           string `json:"reference"`
	Narration           string `json:"narration"`
}

type TransferResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId,omitempty"`
}

func (r *TransferResponse) validate() error {
	if r.Status == "" {
		return fmt.Errorf("transfer response missing status")
	}
	return nil
}

type statusResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    *statusData `json:"data,omitempty"`
}

type statusData struct {
	Reference         string `json:"reference"`
	TransactionID     string `json:"transactionId"`
	TransactionStatus string `json:"transactionStatus"`
	AmountMinorUnits  int64  `json:"amountMinorUnits"`
}

func (r *statusResponse) validate() error {
	if r.Status == "" {
		return fmt.Errorf("status response missing status")
	}
	if r.Status == StatusSuccess && (r.Data == nil || r.Data.TransactionStatus == "") {
		return fmt.Errorf("status response missing transaction status")
	}
	return nil
}

// TxState is what the rail reports about a transfer it was asked to make.
type TxState string

const (
	TxSucceeded TxState = "succeeded"
	TxFailed    TxState = "failed"
	TxPending   TxState = "pending"
	TxNotFound  TxState = "not_found"
)

type StatusResult struct {
	State         TxState
	TransactionID string
	Message       string
}

type balanceResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Data    *balanceData `json:"data,omitempty"`
}

type balanceData struct {
	AccountNumber  string `json:"accountNo"`
	AccountBalance string `json:"accountBalance"`
}

func (r *balanceResponse) validate() error {
	if r.Status == "" {
		return fmt.Errorf("balance response missing status")
	}
	if r.Status == StatusSuccess && (r.Data == nil || r.Data.AccountBalance == "") {
		return fmt.Errorf("balance response missing accountBalance")
	}
	return nil
}

type VirtualAccountRequest struct {
	Reference    string `json:"reference"`
	MerchantName string `json:"merchantName"`
	// Amount is a decimal naira string; empty accepts any amount.
	Amount           string `json:"amount,omitempty"`
	AmountValidation string `json:"amountValidation"`
}

type virtualAccountResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	AccountNumber string `json:"accountNumber,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

func (r *virtualAccountResponse) validate() error {
	if r.Status == "" {
		return fmt.Errorf("virtual account response missing status")
	}
	if r.Status == StatusSuccess && r.AccountNumber == "" {
		return fmt.Errorf("virtual account response missing accountNumber")
	}
	return nil
}

type VirtualAccount struct {
	AccountNumber string
	Reference     string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (r *tokenResponse) validate() error {
	if r.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}
	if r.ExpiresIn <= 0 {
		return fmt.Errorf("token response missing expires_in")
	}
	return nil
}

type validator interface {
	validate() error
}
