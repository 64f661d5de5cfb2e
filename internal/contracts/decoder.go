package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"losslessMarket/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// EventDecoder decodes factory and market events.
type EventDecoder struct {
	events      map[string]abi.Event
	topicToName map[string]string
}

// NewEventDecoder builds a decoder for MarketCreated, BetPlaced,
// MarketResolved, Claimed and MarketCancelled.
func NewEventDecoder() (*EventDecoder, error) {
	factoryABI, err := FactoryABI()
	if err != nil {
		return nil, err
	}
	marketABI, err := MarketABI()
	if err != nil {
		return nil, err
	}

	events := map[string]abi.Event{
		"MarketCreated": factoryABI.Events["MarketCreated"],
	}
	for _, name := range []string{"BetPlaced", "MarketResolved", "Claimed", "MarketCancelled"} {
		events[name] = marketABI.Events[name]
	}

	topicToName := make(map[string]string, len(events))
	for name, event := range events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}
	return &EventDecoder{events: events, topicToName: topicToName}, nil
}

// Topic0s returns the event signatures the decoder understands.
func (d *EventDecoder) Topic0s() []common.Hash {
	out := make([]common.Hash, 0, len(d.events))
	for _, name := range []string{"MarketCreated", "BetPlaced", "MarketResolved", "Claimed", "MarketCancelled"} {
		out = append(out, d.events[name].ID)
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *EventDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *EventDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid contract address: %s", log.Address)
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case "MarketCreated":
		decoded, err = d.decodeMarketCreated(log)
	case "BetPlaced":
		decoded, err = d.decodeBetPlaced(log)
	case "MarketResolved":
		decoded, err = d.decodeMarketResolved(log)
	case "Claimed":
		decoded, err = d.decodeClaimed(log)
	case "MarketCancelled":
		if _, err = parseIndexedTopics(d.events[name], log.Topics); err == nil {
			decoded = model.MarketCancelledEventData{}
		}
	default:
		err = fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, name, decoded), nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         raw,
	}
}

func (d *EventDecoder) decodeMarketCreated(log model.LogRecord) (model.MarketCreatedEventData, error) {
	event := d.events["MarketCreated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.MarketCreatedEventData{}, err
	}

	var indexed struct {
		MarketAddress common.Address
		Creator       common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.MarketCreatedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.MarketCreatedEventData{}, err
	}
	if len(values) != 2 {
		return model.MarketCreatedEventData{}, fmt.Errorf("unexpected MarketCreated values: %d", len(values))
	}
	question, ok := values[0].(string)
	if !ok {
		return model.MarketCreatedEventData{}, fmt.Errorf("question: unexpected type %T", values[0])
	}
	resolveDate, err := asBigInt(values[1])
	if err != nil {
		return model.MarketCreatedEventData{}, err
	}

	return model.MarketCreatedEventData{
		Market:      indexed.MarketAddress.Hex(),
		Creator:     indexed.Creator.Hex(),
		Question:    question,
		ResolveDate: resolveDate.String(),
	}, nil
}

func (d *EventDecoder) decodeBetPlaced(log model.LogRecord) (model.BetPlacedEventData, error) {
	event := d.events["BetPlaced"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.BetPlacedEventData{}, err
	}

	var indexed struct {
		User common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.BetPlacedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.BetPlacedEventData{}, err
	}
	if len(values) != 2 {
		return model.BetPlacedEventData{}, fmt.Errorf("unexpected BetPlaced values: %d", len(values))
	}
	side, err := asUint8(values[0])
	if err != nil {
		return model.BetPlacedEventData{}, err
	}
	amount, err := asBigInt(values[1])
	if err != nil {
		return model.BetPlacedEventData{}, err
	}

	return model.BetPlacedEventData{
		User:   indexed.User.Hex(),
		Side:   model.Side(side),
		Amount: amount.String(),
	}, nil
}

func (d *EventDecoder) decodeMarketResolved(log model.LogRecord) (model.MarketResolvedEventData, error) {
	event := d.events["MarketResolved"]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return model.MarketResolvedEventData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.MarketResolvedEventData{}, err
	}
	if len(values) != 3 {
		return model.MarketResolvedEventData{}, fmt.Errorf("unexpected MarketResolved values: %d", len(values))
	}
	side, err := asUint8(values[0])
	if err != nil {
		return model.MarketResolvedEventData{}, err
	}
	principal, err := asBigInt(values[1])
	if err != nil {
		return model.MarketResolvedEventData{}, err
	}
	interest, err := asBigInt(values[2])
	if err != nil {
		return model.MarketResolvedEventData{}, err
	}

	return model.MarketResolvedEventData{
		WinningSide:    model.Side(side),
		TotalPrincipal: principal.String(),
		Interest:       interest.String(),
	}, nil
}

func (d *EventDecoder) decodeClaimed(log model.LogRecord) (model.ClaimedEventData, error) {
	event := d.events["Claimed"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.ClaimedEventData{}, err
	}

	var indexed struct {
		User common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.ClaimedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.ClaimedEventData{}, err
	}
	if len(values) != 1 {
		return model.ClaimedEventData{}, fmt.Errorf("unexpected Claimed values: %d", len(values))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.ClaimedEventData{}, err
	}

	return model.ClaimedEventData{User: indexed.User.Hex(), Amount: amount.String()}, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
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
	if dataHex == "" || dataHex == "0x" {
		if len(event.Inputs.NonIndexed()) == 0 {
			return nil, nil
		}
	}
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
