package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/preferrrr/blocker-server/config"
	"github.com/preferrrr/blocker-server/model"
)

// LedgerService submits concluded contracts to the ledger API.
// The signing engine calls Submit exactly once per conclusion.
type LedgerService struct {
	config     *config.LedgerConfig
	httpClient *http.Client
}

// LedgerSubmitRequest is the payload sent to the ledger on conclusion
type LedgerSubmitRequest struct {
	ContractID  string   `json:"contract_id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	AuthorEmail string   `json:"author_email"`
	Signers     []string `json:"signers"`
	ConcludedAt string   `json:"concluded_at"`
}

// LedgerSubmitResponse is the ledger's response to a submission
type LedgerSubmitResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		TxID string `json:"tx_id"`
	} `json:"data"`
}

func NewLedgerService(cfg *config.LedgerConfig) *LedgerService {
	return &LedgerService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Submit records a concluded contract on the ledger and returns the ledger
// transaction ID.
func (s *LedgerService) Submit(ctx context.Context, contract *model.Contract, signs []*model.AgreementSign) (string, error) {
	signers := make([]string, len(signs))
	for i, sign := range signs {
		signers[i] = sign.Email
	}

	reqBody := LedgerSubmitRequest{
		ContractID:  contract.ID,
		Title:       contract.Title,
		Content:     contract.Content,
		AuthorEmail: contract.AuthorEmail,
		Signers:     signers,
		ConcludedAt: time.Now().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIURL+"/contracts", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result LedgerSubmitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	if result.Code != 0 {
		return "", fmt.Errorf("ledger API error: %s", result.Message)
	}

	return result.Data.TxID, nil
}
