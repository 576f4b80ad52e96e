package indexer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"pmrouter/internal/eventlog"
	"pmrouter/internal/model"
)

func buildLogRecord(chainID, seq uint64, log types.Log, timestamp uint64) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		Seq:         seq,
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   timestamp,
		EventID:     logID(log),
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
	}
}

func logID(log types.Log) string {
	return fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
}

// EngineTopics returns the topic0 of every engine event, for narrowing a log filter.
func EngineTopics(codec *eventlog.Codec) []common.Hash {
	topics := make([]common.Hash, 0, len(model.EventTypes))
	for _, t := range model.EventTypes {
		if h, ok := codec.Topic0(t); ok {
			topics = append(topics, h)
		}
	}
	return topics
}
