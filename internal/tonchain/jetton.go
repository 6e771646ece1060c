package tonchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"

	"github.com/terramint/mintpay/internal/circuitbreaker"
	"github.com/terramint/mintpay/internal/retry"
)

// TEP-74 jetton transfer op code
const jettonTransferOp = 0xf8a7ea5

// normalizeAddress parses any supported TON address form and returns its
// raw workchain:hex representation for comparison.
func normalizeAddress(addr string) (string, error) {
	id, err := ton.ParseAccountID(addr)
	if err != nil {
		return "", err
	}
	return id.ToRaw(), nil
}

// ValidAddress reports whether s parses as a TON address.
func ValidAddress(s string) bool {
	_, err := ton.ParseAccountID(s)
	return err == nil
}

// ResolveJettonWallet asks the USDT jetton master for the jetton wallet
// address owned by ownerWallet, via runGetMethod get_wallet_address.
func (c *Client) ResolveJettonWallet(ctx context.Context, ownerWallet string) (string, error) {
	owner, err := ton.ParseAccountID(ownerWallet)
	if err != nil {
		return "", fmt.Errorf("owner address: %w", err)
	}

	// get_wallet_address takes the owner address as a single slice argument
	arg := boc.NewCell()
	if err := tlb.Marshal(arg, owner.ToMsgAddress()); err != nil {
		return "", fmt.Errorf("marshal owner address: %w", err)
	}
	argBoc, err := arg.ToBocBase64()
	if err != nil {
		return "", fmt.Errorf("serialize owner address: %w", err)
	}

	result, err := c.runGetMethod(ctx, c.cfg.JettonMaster, "get_wallet_address", []rpcStackItem{
		{Type: "cell", Cell: argBoc},
	})
	if err != nil {
		return "", err
	}
	if len(result.Stack) == 0 || result.Stack[0].Cell == "" {
		return "", fmt.Errorf("jetton master returned no wallet address")
	}

	cells, err := boc.DeserializeBocBase64(result.Stack[0].Cell)
	if err != nil || len(cells) == 0 {
		return "", fmt.Errorf("invalid jetton wallet response: %w", err)
	}

	var addr tlb.MsgAddress
	if err := tlb.Unmarshal(cells[0], &addr); err != nil {
		return "", fmt.Errorf("parse jetton wallet address: %w", err)
	}
	id, err := ton.AccountIDFromTlb(addr)
	if err != nil || id == nil {
		return "", fmt.Errorf("jetton wallet address is not addressable")
	}

	return id.ToHuman(true, false), nil
}

// BuildJettonTransferPayload builds the base64 BOC body for a TEP-74
// jetton transfer of amount (jetton units) to destination, with excess
// gas returned to responseTo. The result is passed raw to TonConnect.
func BuildJettonTransferPayload(amount *big.Int, destination, responseTo string) (string, error) {
	if amount == nil || amount.Sign() <= 0 || !amount.IsUint64() {
		return "", fmt.Errorf("invalid jetton amount")
	}
	dest, err := ton.ParseAccountID(destination)
	if err != nil {
		return "", fmt.Errorf("destination address: %w", err)
	}
	response, err := ton.ParseAccountID(responseTo)
	if err != nil {
		return "", fmt.Errorf("response address: %w", err)
	}

	body := boc.NewCell()
	if err := body.WriteUint(jettonTransferOp, 32); err != nil {
		return "", err
	}
	if err := body.WriteUint(0, 64); err != nil { // query_id
		return "", err
	}
	if err := tlb.Marshal(body, tlb.Grams(amount.Uint64())); err != nil {
		return "", err
	}
	if err := tlb.Marshal(body, dest.ToMsgAddress()); err != nil {
		return "", err
	}
	if err := tlb.Marshal(body, response.ToMsgAddress()); err != nil {
		return "", err
	}
	if err := body.WriteBit(false); err != nil { // no custom_payload
		return "", err
	}
	if err := tlb.Marshal(body, tlb.Grams(1)); err != nil { // forward_ton_amount
		return "", err
	}
	if err := body.WriteBit(false); err != nil { // forward_payload inline (empty)
		return "", err
	}

	return body.ToBocBase64()
}

// TransferPayload builds the TonConnect payload for moving amount of the
// configured jetton to destination, returning excess gas to responseTo.
func (c *Client) TransferPayload(amount *big.Int, destination, responseTo string) (string, error) {
	return BuildJettonTransferPayload(amount, destination, responseTo)
}

// JSON-RPC runGetMethod plumbing

type rpcStackItem struct {
	Type string `json:"type"`
	Cell string `json:"cell,omitempty"`
}

type rpcRequest struct {
	ID      int       `json:"id"`
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Address string         `json:"address"`
	Method  string         `json:"method"`
	Stack   []rpcStackItem `json:"stack"`
}

type rpcResponse struct {
	Result *rpcResult `json:"result"`
	Error  *rpcError  `json:"error"`
}

type rpcResult struct {
	ExitCode int            `json:"exit_code"`
	Stack    []rpcStackItem `json:"stack"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) runGetMethod(ctx context.Context, address, method string, stack []rpcStackItem) (*rpcResult, error) {
	if !c.breaker.Allow(upstreamTonRPC) {
		return nil, fmt.Errorf("tonrpc: %w", circuitbreaker.ErrOpen)
	}

	payload, err := json.Marshal(rpcRequest{
		ID:      1,
		JSONRPC: "2.0",
		Method:  "runGetMethod",
		Params:  rpcParams{Address: address, Method: method, Stack: stack},
	})
	if err != nil {
		return nil, err
	}

	var result *rpcResult
	err = retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("rpc status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Permanent(fmt.Errorf("rpc status %d: %s", resp.StatusCode, body))
		}

		var rpcResp rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return err
		}
		if rpcResp.Error != nil {
			return retry.Permanent(fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
		}
		if rpcResp.Result == nil {
			return retry.Permanent(fmt.Errorf("rpc returned no result"))
		}
		result = rpcResp.Result
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure(upstreamTonRPC)
		return nil, err
	}
	c.breaker.RecordSuccess(upstreamTonRPC)
	return result, nil
}
