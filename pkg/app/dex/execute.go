package dex

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/deeppool/pkg/app/core/epoch"
	"github.com/uhyunpark/deeppool/pkg/app/core/oracle"
	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
	"github.com/uhyunpark/deeppool/pkg/storage"
)

var ErrUnsupportedRequest = errors.New("dex: unsupported request type")

// Result describes one executed request.
type Result struct {
	Type   transaction.RequestType `json:"type"`
	Sender common.Address          `json:"sender"`
	Pool   string                  `json:"pool"`
	Events []storage.EventRecord   `json:"events"`
}

// Execute authenticates req, consumes its nonce and runs it. The nonce is
// consumed even when the operation itself is rejected.
func (a *App) Execute(req *transaction.SignedRequest) (Result, error) {
	sender, err := a.verifier.Verify(req)
	if err != nil {
		a.log.Warnw("request_rejected", "type", req.Type, "err", err)
		return Result{}, err
	}
	res, err := a.dispatch(sender, req)
	if err != nil {
		a.log.Infow("request_failed", "type", req.Type, "sender", sender.Hex(), "err", err)
		return Result{}, err
	}
	return res, nil
}

func (a *App) dispatch(sender common.Address, req *transaction.SignedRequest) (Result, error) {
	res := Result{Type: req.Type, Sender: sender}
	var err error

	switch req.Type {
	case transaction.RequestCreatePool:
		var in transaction.CreatePoolPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = pool.KeyOf(in.Base, in.Quote)
		res.Events, err = a.CreatePool(sender, in)

	case transaction.RequestPlaceOrder:
		var in transaction.PlaceOrderPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.PlaceOrder(sender, in)

	case transaction.RequestCancelOrder:
		var in transaction.CancelOrderPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.CancelOrder(sender, in)

	case transaction.RequestFillOrder:
		var in transaction.FillOrderPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.FillOrder(sender, in)

	case transaction.RequestStake, transaction.RequestUnstake:
		var in transaction.StakePayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.Stake(sender, in, req.Type == transaction.RequestStake)

	case transaction.RequestClaimRebates:
		var in transaction.PoolPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.ClaimRebates(sender, in)

	case transaction.RequestWithdrawSettled:
		var in transaction.PoolPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.WithdrawSettled(sender, in)

	case transaction.RequestAddPricePoint:
		var in transaction.PricePointPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.AddPricePoint(sender, in)

	case transaction.RequestSetNextEpoch:
		var in transaction.NextEpochPayload
		if err := req.Decode(&in); err != nil {
			return Result{}, err
		}
		res.Pool = in.Pool
		res.Events, err = a.SetNextEpoch(sender, in)

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedRequest, req.Type)
	}

	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// CreatePool charges the configured creation fee to sender. Fields the
// request omits take the pool defaults.
func (a *App) CreatePool(sender common.Address, in transaction.CreatePoolPayload) ([]storage.EventRecord, error) {
	cfg := a.cfg.PoolDefaults
	cfg.Base, cfg.Quote = in.Base, in.Quote
	if cfg.FeeAsset == "" {
		cfg.FeeAsset = a.cfg.FeeAsset
	}
	for _, f := range []struct {
		dst *uint64
		src *uint64
	}{
		{&cfg.TickSize, in.TickSize},
		{&cfg.LotSize, in.LotSize},
		{&cfg.TakerFee, in.TakerFee},
		{&cfg.MakerFee, in.MakerFee},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return a.createPool(sender, cfg, a.cfg.CreationFee)
}

func (a *App) PlaceOrder(sender common.Address, in transaction.PlaceOrderPayload) ([]storage.EventRecord, error) {
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		_, err := p.PlaceMakerOrder(ctx, a.ledger, pool.OrderRequest{
			IsBid:                  in.IsBid,
			Price:                  in.Price,
			Quantity:               in.Quantity,
			ExpireTimestamp:        in.ExpireTimestamp,
			SelfMatchingPrevention: in.SelfMatchingPrevention,
		})
		return err
	})
}

func (a *App) CancelOrder(sender common.Address, in transaction.CancelOrderPayload) ([]storage.EventRecord, error) {
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		_, err := p.CancelOrder(ctx, in.OrderID)
		return err
	})
}

func (a *App) FillOrder(sender common.Address, in transaction.FillOrderPayload) ([]storage.EventRecord, error) {
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		_, err := p.FillMakerOrder(ctx, a.ledger, in.OrderID, in.Quantity)
		return err
	})
}

// Stake increases or removes sender's stake.
func (a *App) Stake(sender common.Address, in transaction.StakePayload, increase bool) ([]storage.EventRecord, error) {
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		var err error
		if increase {
			_, err = p.IncreaseStake(ctx, a.ledger, in.Amount)
		} else {
			_, err = p.RemoveStake(ctx, a.ledger, in.Amount)
		}
		return err
	})
}

func (a *App) ClaimRebates(sender common.Address, in transaction.PoolPayload) ([]storage.EventRecord, error) {
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		_, err := p.ClaimRebates(ctx, a.ledger)
		return err
	})
}

func (a *App) WithdrawSettled(sender common.Address, in transaction.PoolPayload) ([]storage.EventRecord, error) {
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		_, err := p.WithdrawSettledFunds(ctx, a.ledger)
		return err
	})
}

func (a *App) AddPricePoint(sender common.Address, in transaction.PricePointPayload) ([]storage.EventRecord, error) {
	if err := a.requireOperator(sender); err != nil {
		return nil, err
	}
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		_, err := p.AddDeepPricePoint(ctx, oracle.PricePoint{
			BaseRate:  in.BaseRate,
			QuoteRate: in.QuoteRate,
			Timestamp: in.Timestamp,
		})
		return err
	})
}

func (a *App) SetNextEpoch(sender common.Address, in transaction.NextEpochPayload) ([]storage.EventRecord, error) {
	if err := a.requireOperator(sender); err != nil {
		return nil, err
	}
	return a.mutate(sender, in.Pool, func(p *pool.Pool, ctx transaction.Context) error {
		_, err := p.SetNextEpochPoolState(ctx, epoch.Params{
			TakerFee:      in.TakerFee,
			MakerFee:      in.MakerFee,
			StakeRequired: in.StakeRequired,
		})
		return err
	})
}

func (a *App) requireOperator(sender common.Address) error {
	if a.cfg.Operator == (common.Address{}) || sender != a.cfg.Operator {
		return fmt.Errorf("%w: %s is not the operator", pool.ErrUnauthorized, sender.Hex())
	}
	return nil
}
