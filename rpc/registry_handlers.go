package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"

	"tokensale/core/identity"
	"tokensale/native/registry"
	"tokensale/native/sale"
)

// decodeSub parses an optional hex sub-identifier; empty means absent.
func decodeSub(s string) (*identity.SubID, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid sub-identifier: %w", err)
	}
	sub, err := identity.SubIDFromBytes(raw)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

type holderPayload struct {
	Owner string `json:"owner"`
	Sub   string `json:"sub,omitempty"`
}

type transferItemPayload struct {
	TokenID uint32        `json:"tokenId"`
	FromSub string        `json:"fromSub,omitempty"`
	To      holderPayload `json:"to"`
	Memo    string        `json:"memo,omitempty"`
}

type registryTransferParams struct {
	Caller    string                `json:"caller"`
	Transfers []transferItemPayload `json:"transfers"`
}

type transferResultPayload struct {
	Txn   uint64 `json:"txn,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleRegistryTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registryTransferParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transfer parameters", err.Error())
		return
	}
	caller, err := decodeHandle(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller handle", err.Error())
		return
	}
	if len(params.Transfers) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at least one transfer required", nil)
		return
	}
	items := make([]sale.TransferItem, 0, len(params.Transfers))
	for i, t := range params.Transfers {
		owner, err := decodeHandle(t.To.Owner)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("transfer %d: invalid recipient handle", i), err.Error())
			return
		}
		toSub, err := decodeSub(t.To.Sub)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("transfer %d: %v", i, err), nil)
			return
		}
		fromSub, err := decodeSub(t.FromSub)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("transfer %d: %v", i, err), nil)
			return
		}
		items = append(items, sale.TransferItem{
			TokenID: t.TokenID,
			FromSub: fromSub,
			To:      registry.Holder{Owner: owner, Sub: toSub},
			Memo:    []byte(t.Memo),
		})
	}
	results := s.engine.TransferTokens(caller, items)
	s.persistState()
	out := make([]transferResultPayload, len(results))
	for i, res := range results {
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			continue
		}
		out[i].Txn = res.Txn
	}
	writeResult(w, req.ID, out)
}

type pageParams struct {
	Prev *uint32 `json:"prev,omitempty"`
	Take *uint32 `json:"take,omitempty"`
}

func (p pageParams) window() (prev, take uint32) {
	if p.Prev != nil {
		prev = *p.Prev
	}
	if p.Take != nil {
		take = *p.Take
	}
	return prev, take
}

func (s *Server) handleRegistryTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pageParams
	if len(req.Params) > 0 {
		if err := singleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid pagination parameters", err.Error())
			return
		}
	}
	prev, take := params.window()
	writeResult(w, req.ID, s.engine.Tokens(prev, take))
}

type tokensOfParams struct {
	Owner string  `json:"owner"`
	Sub   string  `json:"sub,omitempty"`
	Prev  *uint32 `json:"prev,omitempty"`
	Take  *uint32 `json:"take,omitempty"`
}

func (s *Server) handleRegistryTokensOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokensOfParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	owner, err := decodeHandle(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner handle", err.Error())
		return
	}
	sub, err := decodeSub(params.Sub)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	page := pageParams{Prev: params.Prev, Take: params.Take}
	prev, take := page.window()
	writeResult(w, req.ID, s.engine.TokensOf(owner, sub, prev, take))
}

type ownerOfParams struct {
	TokenIDs []uint32 `json:"tokenIds"`
}

func (s *Server) handleRegistryOwnerOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ownerOfParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	holders := s.engine.OwnerOf(params.TokenIDs)
	out := make([]*holderPayload, len(holders))
	for i, h := range holders {
		if h == nil {
			continue
		}
		payload := &holderPayload{Owner: h.Owner.String()}
		if h.Sub != nil {
			payload.Sub = hex.EncodeToString(h.Sub[:])
		}
		out[i] = payload
	}
	writeResult(w, req.ID, out)
}

type counterResult struct {
	Counter uint64 `json:"counter"`
}

func (s *Server) handleRegistryCounter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, counterResult{Counter: s.engine.Counter()})
}
