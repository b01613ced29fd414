package rpc

import (
	"net/http"
	"strings"

	"nftmarket/crypto"
	"nftmarket/native/market"
	"nftmarket/native/registry"
)

func writeInvalidParams(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
}

// writeMarketError maps market error kinds onto JSON-RPC codes.
func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	switch market.KindOf(err) {
	case market.KindInvalidBidAmount:
		writeError(w, http.StatusBadRequest, id, codeInvalidBidAmount, "invalid_bid_amount", err.Error())
	case market.KindUnauthorized:
		writeError(w, http.StatusForbidden, id, codeNotOwner, "unauthorized", err.Error())
	case market.KindNotFound:
		writeError(w, http.StatusNotFound, id, codeNotFound, "not_found", err.Error())
	case market.KindClaimed:
		writeError(w, http.StatusConflict, id, codeClaimed, "claimed", err.Error())
	case market.KindExpired:
		writeError(w, http.StatusConflict, id, codeExpired, "expired", err.Error())
	case market.KindInsufficientFunds:
		writeError(w, http.StatusConflict, id, codeInsufficientFunds, "insufficient_funds", err.Error())
	case market.KindInvalidRequest:
		writeInvalidParams(w, id, err)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request, req *RPCRequest) ([20]byte, bool) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "caller identity required", nil)
		return [20]byte{}, false
	}
	return caller, true
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params MintParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	token := &registry.Token{
		ID:          params.AssetID,
		Name:        params.Name,
		Description: params.Description,
		Image:       params.Image,
	}
	if strings.TrimSpace(params.Owner) != "" {
		owner, err := parseAddress("owner", params.Owner)
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
		token.Owner = owner
	}
	var ask *market.Coin
	if params.Ask != nil {
		coin, err := params.Ask.coin()
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
		ask = &coin
	}
	minted, listed, err := s.node.Mint(r.Context(), caller, token, ask)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, MintResult{Token: tokenResult(minted), Ask: askResult(listed)})
}

func (s *Server) handlePublishAsk(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params PublishAskParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	price, err := params.Price.coin()
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	ask, err := s.node.PublishAsk(r.Context(), caller, params.AssetID, price)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, askResult(ask))
}

func (s *Server) handleWithdrawAsk(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params AssetParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	ask, err := s.node.WithdrawAsk(r.Context(), caller, params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, askResult(ask))
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params PlaceBidParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	bidder, err := parseAddress("bidder", params.Bidder)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if bidder != caller {
		writeError(w, http.StatusForbidden, req.ID, codeNotOwner, "unauthorized", "bidder must match the authenticated caller")
		return
	}
	var recipient [20]byte
	if strings.TrimSpace(params.Recipient) != "" {
		recipient, err = parseAddress("recipient", params.Recipient)
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	amount, err := params.Amount.coin()
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	result, err := s.node.PlaceBid(r.Context(), params.AssetID, amount, bidder, recipient)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, PlaceBidResult{
		Action:     string(result.Action),
		Bid:        bidResult(result.Bid),
		Settlement: settlementResult(result.Settlement),
	})
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params BidderParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	bidder, err := parseAddress("bidder", params.Bidder)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	settlement, err := s.node.AcceptBid(r.Context(), caller, params.AssetID, bidder)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, settlementResult(settlement))
}

func (s *Server) handleWithdrawBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params AssetParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	bid, err := s.node.WithdrawBid(r.Context(), caller, params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, bidResult(bid))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params ApproveParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	spender, err := parseAddress("spender", params.Spender)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if err := s.node.Approve(r.Context(), caller, params.AssetID, spender, params.ExpiresAt); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleLockToggle(w, r, req, true)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleLockToggle(w, r, req, false)
}

func (s *Server) handleLockToggle(w http.ResponseWriter, r *http.Request, req *RPCRequest, lock bool) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params AssetParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	var err error
	if lock {
		err = s.node.Lock(r.Context(), caller, params.AssetID)
	} else {
		err = s.node.Unlock(r.Context(), caller, params.AssetID)
	}
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"locked": lock})
}

func (s *Server) handleCurrentAsk(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params AssetParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	ask, err := s.node.CurrentAsk(params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, askResult(ask))
}

func (s *Server) handleBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params BidderParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	bidder, err := parseAddress("bidder", params.Bidder)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	bid, err := s.node.Bid(params.AssetID, bidder)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, bidResult(bid))
}

func (s *Server) handleBids(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params AssetParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	bids, err := s.node.Bids(params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	out := make([]*BidResult, 0, len(bids))
	for _, bid := range bids {
		out = append(out, bidResult(bid))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleOwnerOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params AssetParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner, err := s.node.OwnerOf(params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": crypto.FromBytes20(owner).String()})
}

func (s *Server) handleToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params AssetParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	token, err := s.node.Token(params.AssetID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tokenResult(token))
}

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params SalesParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "indexer disabled", nil)
		return
	}
	sales, err := s.history.Sales(r.Context(), params.AssetID, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	out := make([]SaleResult, 0, len(sales))
	for _, sale := range sales {
		out = append(out, saleResult(sale))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params EventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "indexer disabled", nil)
		return
	}
	records, err := s.history.Events(r.Context(), params.Type, params.AssetID, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	out := make([]EventResult, 0, len(records))
	for _, rec := range records {
		res, err := eventResult(rec)
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
			return
		}
		out = append(out, res)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params BalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	bal, err := s.node.Balance(addr, params.Denom)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{
		Address: crypto.FromBytes20(addr).String(),
		Denom:   strings.ToLower(strings.TrimSpace(params.Denom)),
		Amount:  bal.String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	status := StatusResult{
		Height:       s.node.Height(),
		Root:         s.node.Root().Hex(),
		MarketModule: crypto.FromBytes20(s.node.MarketModuleAddress()).String(),
		CustodyVault: crypto.FromBytes20(s.node.CustodyVaultAddress()).String(),
	}
	if minter, err := s.node.Minter(); err == nil {
		status.Minter = crypto.FromBytes20(minter).String()
	}
	writeResult(w, req.ID, status)
}
