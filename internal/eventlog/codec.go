package eventlog

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"pmrouter/internal/model"
)

// Codec converts between model.Event and model.LogRecord.
type Codec struct {
	engineABI   abi.ABI
	emitter     common.Address
	topicToType map[string]model.EventType
}

// NewCodec builds a codec whose logs carry emitter as their address.
func NewCodec(emitter common.Address) (*Codec, error) {
	parsed, err := EngineABI()
	if err != nil {
		return nil, err
	}
	topicToType := make(map[string]model.EventType, len(eventNames))
	for t, name := range eventNames {
		ev, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("abi missing event %s", name)
		}
		topicToType[strings.ToLower(ev.ID.Hex())] = t
	}
	return &Codec{engineABI: parsed, emitter: emitter, topicToType: topicToType}, nil
}

// Topic0 returns the signature hash of an event type.
func (c *Codec) Topic0(t model.EventType) (common.Hash, bool) {
	ev, ok := c.engineABI.Events[eventNames[t]]
	if !ok {
		return common.Hash{}, false
	}
	return ev.ID, true
}

// CanDecode checks if the topic0 is an engine event.
func (c *Codec) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := c.topicToType[strings.ToLower(topic0)]
	return ok
}

// Encode renders ev as a log record.
func (c *Codec) Encode(ev model.Event) (model.LogRecord, error) {
	name, ok := eventNames[ev.Type]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unsupported event type: %s", ev.Type)
	}
	event := c.engineABI.Events[name]

	shares, err := parseAmount(ev.Shares)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("shares: %w", err)
	}
	collateral, err := parseAmount(ev.Collateral)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("collateral: %w", err)
	}
	units, err := parseAmount(ev.Units)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("units: %w", err)
	}
	if ev.Levels < 0 || ev.Levels > 0xffff {
		return model.LogRecord{}, fmt.Errorf("levels out of range: %d", ev.Levels)
	}

	data, err := event.Inputs.NonIndexed().Pack(
		[32]byte(ev.Market),
		ev.Yes,
		uint8(ev.Kind),
		ev.Price,
		ev.ToPrice,
		ev.Recipient,
		shares,
		collateral,
		units,
		string(ev.Source),
		uint16(ev.Levels),
	)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", name, err)
	}

	return model.LogRecord{
		Seq:     ev.Seq,
		Address: c.emitter.Hex(),
		Topics: []string{
			event.ID.Hex(),
			ev.PoolID.Hex(),
			common.BytesToHash(ev.Actor.Bytes()).Hex(),
		},
		Data:      hexutil.Encode(data),
		Timestamp: uint64(ev.Timestamp.Unix()),
		EventID:   ev.ID,
	}, nil
}

// EncodeAll encodes a batch, stopping at the first failure.
func (c *Codec) EncodeAll(events []model.Event) ([]model.LogRecord, error) {
	out := make([]model.LogRecord, 0, len(events))
	for _, ev := range events {
		rec, err := c.Encode(ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Decode converts a log record back into an event. Zero amounts come back empty.
func (c *Codec) Decode(log model.LogRecord) (model.Event, error) {
	if len(log.Topics) == 0 {
		return model.Event{}, fmt.Errorf("missing topics")
	}
	t, ok := c.topicToType[strings.ToLower(log.Topics[0])]
	if !ok {
		return model.Event{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	event := c.engineABI.Events[eventNames[t]]

	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Event{}, err
	}
	var indexed struct {
		PoolId [32]byte
		Actor  common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Event{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Event{}, err
	}
	if len(values) != 11 {
		return model.Event{}, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}

	var (
		market    [32]byte
		yes       bool
		kind      uint8
		price     uint16
		toPrice   uint16
		recipient common.Address
		source    string
		levels    uint16
	)
	for i, dst := range []any{&market, &yes, &kind, &price, &toPrice, &recipient} {
		if err := assign(dst, values[i]); err != nil {
			return model.Event{}, fmt.Errorf("field %d: %w", i, err)
		}
	}
	amounts := make([]string, 3)
	for i := range amounts {
		v, ok := values[6+i].(*big.Int)
		if !ok {
			return model.Event{}, fmt.Errorf("field %d: unexpected type %T", 6+i, values[6+i])
		}
		if v.Sign() != 0 {
			amounts[i] = v.String()
		}
	}
	if err := assign(&source, values[9]); err != nil {
		return model.Event{}, fmt.Errorf("source: %w", err)
	}
	if err := assign(&levels, values[10]); err != nil {
		return model.Event{}, fmt.Errorf("levels: %w", err)
	}
	if kind > uint8(model.Bid) {
		return model.Event{}, fmt.Errorf("unknown pool kind %d", kind)
	}

	return model.Event{
		ID:         log.EventID,
		Seq:        log.Seq,
		Type:       t,
		Timestamp:  time.Unix(int64(log.Timestamp), 0).UTC(),
		PoolID:     common.Hash(indexed.PoolId),
		Market:     common.Hash(market),
		Yes:        yes,
		Kind:       model.PoolKind(kind),
		Price:      price,
		ToPrice:    toPrice,
		Actor:      indexed.Actor,
		Recipient:  recipient,
		Shares:     amounts[0],
		Collateral: amounts[1],
		Units:      amounts[2],
		Source:     model.Source(source),
		Levels:     int(levels),
	}, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	return v, nil
}

func assign(dst any, value any) error {
	switch d := dst.(type) {
	case *[32]byte:
		v, ok := value.([32]byte)
		if !ok {
			return fmt.Errorf("unexpected type %T", value)
		}
		*d = v
	case *bool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("unexpected type %T", value)
		}
		*d = v
	case *uint8:
		v, ok := value.(uint8)
		if !ok {
			return fmt.Errorf("unexpected type %T", value)
		}
		*d = v
	case *uint16:
		v, ok := value.(uint16)
		if !ok {
			return fmt.Errorf("unexpected type %T", value)
		}
		*d = v
	case *common.Address:
		v, ok := value.(common.Address)
		if !ok {
			return fmt.Errorf("unexpected type %T", value)
		}
		*d = v
	case *string:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T", value)
		}
		*d = v
	default:
		return fmt.Errorf("unsupported destination %T", dst)
	}
	return nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
