package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"tokensale/core/identity"
	"tokensale/native/sale"
)

type bookParams struct {
	Caller   string `json:"caller"`
	Quantity uint64 `json:"quantity"`
}

type bookResult struct {
	Booked uint64 `json:"booked"`
	Total  uint64 `json:"totalBooked"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bookParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid book parameters", err.Error())
		return
	}
	caller, err := decodeHandle(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller handle", err.Error())
		return
	}
	if err := s.engine.Book(r.Context(), caller, params.Quantity); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Bookings.Inc()
	}
	s.persistState()
	writeResult(w, req.ID, bookResult{
		Booked: s.engine.BookedOf(caller),
		Total:  s.engine.TotalBooked(),
	})
}

type callerParams struct {
	Caller string `json:"caller"`
}

type statusResult struct {
	Status string `json:"status"`
}

// resolveSale runs accept, reject, and their re-drive variants; they share the
// caller-only parameter shape.
func (s *Server) resolveSale(w http.ResponseWriter, r *http.Request, req *RPCRequest, op func(caller identity.Handle) error) {
	var params callerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := decodeHandle(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller handle", err.Error())
		return
	}
	opErr := op(caller)
	// The status may have transitioned even when disbursement partially
	// failed, so the snapshot flushes before the error is reported.
	s.persistState()
	if opErr != nil {
		s.writeDomainError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, statusResult{Status: s.engine.Status().String()})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.resolveSale(w, r, req, func(caller identity.Handle) error {
		err := s.engine.Accept(r.Context(), caller)
		if err == nil && s.metrics != nil {
			s.metrics.Settlements.Inc()
		}
		return err
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.resolveSale(w, r, req, func(caller identity.Handle) error {
		err := s.engine.Reject(r.Context(), caller)
		if err == nil && s.metrics != nil {
			s.metrics.Refunds.Inc()
		}
		return err
	})
}

func (s *Server) handleResumeSettlement(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.resolveSale(w, r, req, func(caller identity.Handle) error {
		return s.engine.ResumeSettlement(r.Context(), caller)
	})
}

func (s *Server) handleResumeRefunds(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.resolveSale(w, r, req, func(caller identity.Handle) error {
		return s.engine.ResumeRefunds(r.Context(), caller)
	})
}

type refundParams struct {
	Investor string `json:"investor"`
}

type refundResult struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleRefundInvestor(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params refundParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid refund parameters", err.Error())
		return
	}
	investor, err := decodeHandle(params.Investor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid investor handle", err.Error())
		return
	}
	outcome, err := s.engine.RefundInvestor(r.Context(), investor)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Refunds.Inc()
	}
	writeResult(w, req.ID, refundResult{
		To:     outcome.To.Hex(),
		Amount: outcome.Amount.String(),
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, statusResult{Status: s.engine.Status().String()})
}

type bookedParams struct {
	Investor string `json:"investor"`
}

type bookedResult struct {
	Quantity uint64 `json:"quantity"`
}

func (s *Server) handleGetBooked(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params bookedParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	investor, err := decodeHandle(params.Investor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid investor handle", err.Error())
		return
	}
	writeResult(w, req.ID, bookedResult{Quantity: s.engine.BookedOf(investor)})
}

type totalBookedResult struct {
	Total uint64 `json:"total"`
}

func (s *Server) handleGetTotalBooked(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, totalBookedResult{Total: s.engine.TotalBooked()})
}

func (s *Server) handleGetParticipants(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	participants := s.engine.Participants()
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		out = append(out, p.String())
	}
	writeResult(w, req.ID, out)
}

type escrowAccountResult struct {
	Owner      string `json:"owner"`
	Subaccount string `json:"subaccount"`
	Account    string `json:"account"`
}

func (s *Server) handleGetEscrowAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params callerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := decodeHandle(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller handle", err.Error())
		return
	}
	account, err := s.engine.EscrowAddress(caller)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowAccountResult{
		Owner:      account.Owner.String(),
		Subaccount: hex.EncodeToString(account.Sub[:]),
		Account:    account.Account.Hex(),
	})
}

type documentPayload struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type attributePayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metadataResult struct {
	Name          string             `json:"name"`
	Symbol        string             `json:"symbol"`
	Description   string             `json:"description,omitempty"`
	LogoURL       string             `json:"logoUrl,omitempty"`
	BrochureURL   string             `json:"brochureUrl,omitempty"`
	Images        []string           `json:"images,omitempty"`
	Documents     []documentPayload  `json:"documents,omitempty"`
	Attributes    []attributePayload `json:"attributes,omitempty"`
	PurchasePrice string             `json:"purchasePrice,omitempty"`
	UnitPrice     string             `json:"unitPrice"`
	SupplyCap     uint64             `json:"supplyCap"`
	Treasury      string             `json:"treasury"`
	Owner         string             `json:"owner"`
	AssetStore    string             `json:"assetStore,omitempty"`
	TotalSupply   uint64             `json:"totalSupply"`
}

func metadataToResult(meta *sale.Metadata, totalSupply uint64) metadataResult {
	result := metadataResult{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Description: meta.Description,
		LogoURL:     meta.LogoURL,
		BrochureURL: meta.BrochureURL,
		Images:      meta.Images,
		SupplyCap:   meta.SupplyCap,
		Treasury:    meta.Treasury.String(),
		Owner:       meta.CollectionOwner.String(),
		TotalSupply: totalSupply,
	}
	if !meta.AssetStore.IsZero() {
		result.AssetStore = meta.AssetStore.String()
	}
	if meta.PurchasePrice != nil {
		result.PurchasePrice = meta.PurchasePrice.String()
	}
	if meta.UnitPrice != nil {
		result.UnitPrice = meta.UnitPrice.String()
	}
	for _, doc := range meta.Documents {
		result.Documents = append(result.Documents, documentPayload{Title: doc.Title, URL: doc.URL})
	}
	for _, attr := range meta.Attributes {
		result.Attributes = append(result.Attributes, attributePayload{Key: attr.Key, Value: attr.Value})
	}
	return result
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	meta, totalSupply, err := s.engine.Metadata()
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, metadataToResult(meta, totalSupply))
}

type metadataUpdateParams struct {
	Caller        string             `json:"caller"`
	Name          *string            `json:"name,omitempty"`
	Symbol        *string            `json:"symbol,omitempty"`
	Description   *string            `json:"description,omitempty"`
	LogoURL       *string            `json:"logoUrl,omitempty"`
	BrochureURL   *string            `json:"brochureUrl,omitempty"`
	Images        []string           `json:"images,omitempty"`
	Documents     []documentPayload  `json:"documents,omitempty"`
	Attributes    []attributePayload `json:"attributes,omitempty"`
	PurchasePrice *string            `json:"purchasePrice,omitempty"`
	UnitPrice     *string            `json:"unitPrice,omitempty"`
	SupplyCap     *uint64            `json:"supplyCap,omitempty"`
	Treasury      *string            `json:"treasury,omitempty"`
	AssetStore    *string            `json:"assetStore,omitempty"`
}

type txnResult struct {
	Txn uint64 `json:"txn"`
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params metadataUpdateParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid metadata parameters", err.Error())
		return
	}
	caller, err := decodeHandle(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller handle", err.Error())
		return
	}
	update := &sale.MetadataUpdate{
		Name:        params.Name,
		Symbol:      params.Symbol,
		Description: params.Description,
		LogoURL:     params.LogoURL,
		BrochureURL: params.BrochureURL,
		Images:      params.Images,
		SupplyCap:   params.SupplyCap,
	}
	for _, doc := range params.Documents {
		update.Documents = append(update.Documents, sale.Document{Title: doc.Title, URL: doc.URL})
	}
	for _, attr := range params.Attributes {
		update.Attributes = append(update.Attributes, sale.Attribute{Key: attr.Key, Value: attr.Value})
	}
	if params.PurchasePrice != nil {
		price, ok := new(big.Int).SetString(*params.PurchasePrice, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid purchase price", *params.PurchasePrice)
			return
		}
		update.PurchasePrice = price
	}
	if params.UnitPrice != nil {
		price, ok := new(big.Int).SetString(*params.UnitPrice, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid unit price", *params.UnitPrice)
			return
		}
		update.UnitPrice = price
	}
	if params.Treasury != nil {
		treasury, err := decodeHandle(*params.Treasury)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid treasury handle", err.Error())
			return
		}
		update.Treasury = &treasury
	}
	if params.AssetStore != nil {
		store, err := decodeHandle(*params.AssetStore)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset store handle", err.Error())
			return
		}
		update.AssetStore = &store
	}
	txn, err := s.engine.UpdateMetadata(caller, update)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.persistState()
	writeResult(w, req.ID, txnResult{Txn: txn})
}

type changeOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

func (s *Server) handleChangeOwnership(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params changeOwnershipParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := decodeHandle(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller handle", err.Error())
		return
	}
	newOwner, err := decodeHandle(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid new owner handle", err.Error())
		return
	}
	txn, err := s.engine.ChangeOwnership(r.Context(), caller, newOwner)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.persistState()
	writeResult(w, req.ID, txnResult{Txn: txn})
}
