package chain

import (
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// toTxObject renders req as a JSON-RPC transaction object.
func toTxObject(req TxRequest) map[string]any {
	obj := map[string]any{"from": req.From}
	if req.To != nil {
		obj["to"] = req.To
	}
	if len(req.Data) > 0 {
		obj["data"] = hexutil.Bytes(req.Data)
	}
	if req.Value != nil {
		obj["value"] = (*hexutil.Big)(req.Value)
	}
	if req.Gas != 0 {
		obj["gas"] = hexutil.Uint64(req.Gas)
	}
	if req.GasPrice != nil {
		obj["gasPrice"] = (*hexutil.Big)(req.GasPrice)
	}
	if req.Nonce != nil {
		obj["nonce"] = hexutil.Uint64(*req.Nonce)
	}
	return obj
}

func toCallMsg(req TxRequest) ethereum.CallMsg {
	return ethereum.CallMsg{
		From:     req.From,
		To:       req.To,
		Gas:      req.Gas,
		GasPrice: req.GasPrice,
		Value:    req.Value,
		Data:     req.Data,
	}
}
