package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"losslessMarket/internal/model"
)

func TestEventDecoderBetPlaced(t *testing.T) {
	marketABI, err := MarketABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewEventDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	market := common.HexToAddress("0x1111111111111111111111111111111111111111")
	user := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := marketABI.Events["BetPlaced"].Inputs.NonIndexed().Pack(uint8(model.SideNo), big.NewInt(25_000_000))
	if err != nil {
		t.Fatalf("pack bet: %v", err)
	}
	logRecord := buildLogRecord(market, marketABI.Events["BetPlaced"].ID, data, []common.Hash{topicFromAddress(user)})

	if !decoder.CanDecode(logRecord.Topics[0]) {
		t.Fatalf("expected BetPlaced topic to be decodable")
	}
	event, err := decoder.Decode(logRecord)
	if err != nil {
		t.Fatalf("decode bet: %v", err)
	}
	if event.EventName != "BetPlaced" || event.Address != market.Hex() {
		t.Fatalf("event header mismatch: %+v", event)
	}

	bet, ok := event.Decoded.(model.BetPlacedEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if bet.User != user.Hex() || bet.Side != model.SideNo || bet.Amount != "25000000" {
		t.Fatalf("bet mismatch: %+v", bet)
	}
}

func TestEventDecoderLifecycleEvents(t *testing.T) {
	factoryABI, err := FactoryABI()
	if err != nil {
		t.Fatalf("factory abi: %v", err)
	}
	marketABI, err := MarketABI()
	if err != nil {
		t.Fatalf("market abi: %v", err)
	}
	decoder, err := NewEventDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	factory := common.HexToAddress("0x9999999999999999999999999999999999999999")
	market := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	creator := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	createdData, err := factoryABI.Events["MarketCreated"].Inputs.NonIndexed().Pack("Will ETH be above $3,500?", big.NewInt(1735689600))
	if err != nil {
		t.Fatalf("pack created: %v", err)
	}
	createdEvent, err := decoder.Decode(buildLogRecord(factory, factoryABI.Events["MarketCreated"].ID, createdData, []common.Hash{
		topicFromAddress(market),
		topicFromAddress(creator),
	}))
	if err != nil {
		t.Fatalf("decode created: %v", err)
	}
	created, ok := createdEvent.Decoded.(model.MarketCreatedEventData)
	if !ok {
		t.Fatalf("created type mismatch")
	}
	if created.Market != market.Hex() || created.Creator != creator.Hex() || created.ResolveDate != "1735689600" {
		t.Fatalf("created mismatch: %+v", created)
	}

	resolvedData, err := marketABI.Events["MarketResolved"].Inputs.NonIndexed().Pack(uint8(model.SideYes), big.NewInt(1_000_000), big.NewInt(4_200))
	if err != nil {
		t.Fatalf("pack resolved: %v", err)
	}
	resolvedEvent, err := decoder.Decode(buildLogRecord(market, marketABI.Events["MarketResolved"].ID, resolvedData, nil))
	if err != nil {
		t.Fatalf("decode resolved: %v", err)
	}
	resolved := resolvedEvent.Decoded.(model.MarketResolvedEventData)
	if resolved.WinningSide != model.SideYes || resolved.Interest != "4200" {
		t.Fatalf("resolved mismatch: %+v", resolved)
	}

	claimedData, err := marketABI.Events["Claimed"].Inputs.NonIndexed().Pack(big.NewInt(1_004_200))
	if err != nil {
		t.Fatalf("pack claimed: %v", err)
	}
	claimedEvent, err := decoder.Decode(buildLogRecord(market, marketABI.Events["Claimed"].ID, claimedData, []common.Hash{topicFromAddress(creator)}))
	if err != nil {
		t.Fatalf("decode claimed: %v", err)
	}
	if claimed := claimedEvent.Decoded.(model.ClaimedEventData); claimed.Amount != "1004200" || claimed.User != creator.Hex() {
		t.Fatalf("claimed mismatch: %+v", claimed)
	}

	cancelledEvent, err := decoder.Decode(buildLogRecord(market, marketABI.Events["MarketCancelled"].ID, nil, nil))
	if err != nil {
		t.Fatalf("decode cancelled: %v", err)
	}
	if cancelledEvent.EventName != "MarketCancelled" {
		t.Fatalf("cancelled name mismatch: %s", cancelledEvent.EventName)
	}
}

func TestEventDecoderRejectsUnknownTopic(t *testing.T) {
	decoder, err := NewEventDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	unknown := common.HexToHash("0x01")
	if decoder.CanDecode(unknown.Hex()) {
		t.Fatalf("unexpected decodable topic")
	}
	if _, err := decoder.Decode(buildLogRecord(common.Address{}, unknown, nil, nil)); err == nil {
		t.Fatalf("expected error for unknown topic")
	}
	if len(decoder.Topic0s()) != 5 {
		t.Fatalf("expected 5 topics, got %d", len(decoder.Topic0s()))
	}
}

func buildLogRecord(contract common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     421614,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     contract.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
