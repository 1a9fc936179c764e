package rail

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
)

// Sandbox simulates the rail for non-production deployments. Transfers
// succeed unless FailureRate says otherwise and are remembered so status
// queries answer consistently.
type Sandbox struct {
	// FailureRate is the probability (0.0 to 1.0) that a transfer is declined.
	FailureRate float64
	// Latency bounds the simulated network delay.
	Latency time.Duration

	mu        sync.Mutex
	transfers map[string]*StatusResult
	balances  map[string]int64
	nextVA    int
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		transfers: make(map[string]*StatusResult),
		balances:  make(map[string]int64),
	}
}

func (s *Sandbox) delay(ctx context.Context) error {
	if s.Latency <= 0 {
		return nil
	}
	d := time.Duration(rand.Int63n(int64(s.Latency)))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return domain.NewError(domain.CodeRailTimeout, domain.ErrRailTimeout.Message, ctx.Err())
	}
}

func (s *Sandbox) Transfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.transfers[req.Reference]; ok {
		if prior.State == TxSucceeded {
			return &TransferResponse{Status: StatusSuccess, Message: "Successful Transaction", TransactionID: prior.TransactionID}, nil
		}
		return &TransferResponse{Status: "99", Message: prior.Message}, rejection(prior.Message)
	}

	if rand.Float64() < s.FailureRate {
		s.transfers[req.Reference] = &StatusResult{State: TxFailed, Message: "Transfer declined by sandbox"}
		return &TransferResponse{Status: "99", Message: "Transfer declined by sandbox"}, rejection("Transfer declined by sandbox")
	}

	// Format: SBX-YYYYMMDD-HHMMSS-XXXXX
	id := fmt.Sprintf("SBX-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	s.transfers[req.Reference] = &StatusResult{State: TxSucceeded, TransactionID: id, Message: "Successful Transaction"}
	return &TransferResponse{Status: StatusSuccess, Message: "Successful Transaction", TransactionID: id}, nil
}

func (s *Sandbox) TransactionStatus(ctx context.Context, reference string) (*StatusResult, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.transfers[reference]; ok {
		out := *res
		return &out, nil
	}
	return &StatusResult{State: TxNotFound, Message: "No transaction found"}, nil
}

// SetBalance seeds the balance returned for accountNumber.
func (s *Sandbox) SetBalance(accountNumber string, kobo int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountNumber] = kobo
}

func (s *Sandbox) Balance(ctx context.Context, accountNumber string) (int64, error) {
	if err := s.delay(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[accountNumber]
	if !ok {
		return 0, rejection("Account not found")
	}
	return bal, nil
}

func (s *Sandbox) CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVA++
	return &VirtualAccount{
		AccountNumber: fmt.Sprintf("99%08d", s.nextVA),
		Reference:     req.Reference,
	}, nil
}
