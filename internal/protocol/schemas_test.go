package protocol_test

import (
	"encoding/json"
	"testing"

	"pumpelf.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	valid := []string{
		`{"kind":"install_player","player":[1,2],"nonce":0}`,
		`{"kind":"buy_elf","player":[1,2],"nonce":3,"ranch_id":1,"elf_type":1}`,
		`{"kind":"feed_elf","player":[1,2],"nonce":4,"ranch_id":1,"elf_id":1,"prop_id":1}`,
		`{"kind":"deposit","player":[9,9],"nonce":0,"target":[1,2],"amount":500,"currency":"usdt"}`,
		`{"kind":"withdraw","player":[1,2],"nonce":5,"amount":10,"address":"0x52908400098527886E0F7030069857D2E4169EE7"}`,
		`{"kind":"tick","player":[9,9],"nonce":7,"reveal":[1,2,3,18446744073709551615],"commitment":"` +
			"0000000000000000000000000000000000000000000000000000000000000000" + `"}`,
	}
	for _, raw := range valid {
		if err := protocol.ValidateCommandJSON([]byte(raw)); err != nil {
			t.Fatalf("expected valid %s: %v", raw, err)
		}
	}

	invalid := []string{
		`{"kind":"fly","player":[1,2],"nonce":0}`,
		`{"kind":"buy_elf","player":[1,2],"nonce":0}`,
		`{"kind":"feed_elf","player":[1,2],"nonce":0,"ranch_id":1}`,
		`{"kind":"install_player","player":[1],"nonce":0}`,
		`{"kind":"install_player","player":[1,2],"nonce":-1}`,
		`{"kind":"install_player","player":[1,2],"nonce":0,"extra":true}`,
		`{"kind":"buy_prop","player":[1,2],"nonce":0,"prop_id":1,"currency":"btc"}`,
		`{"kind":"withdraw","player":[1,2],"nonce":0,"amount":1,"address":"nope"}`,
	}
	for _, raw := range invalid {
		if err := protocol.ValidateCommandJSON([]byte(raw)); err == nil {
			t.Fatalf("expected schema rejection for %s", raw)
		}
	}
}

func TestParseCommand_RoundTripsEncodedCommands(t *testing.T) {
	target := [2]uint64{1, 2}
	in := protocol.Command{
		Kind:     protocol.KindDeposit,
		Player:   [2]uint64{7, 7},
		Nonce:    3,
		Target:   &target,
		Amount:   250,
		Currency: protocol.CurrencyGold,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := protocol.ParseCommand(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Kind != in.Kind || got.Amount != 250 || got.Target == nil || *got.Target != target {
		t.Fatalf("unexpected command: %+v", got)
	}

	_, err = protocol.ParseCommand([]byte(`{"kind":"buy_elf","player":[1,2],"nonce":0}`))
	if protocol.CodeOf(err) != protocol.CodeBadCommand {
		t.Fatalf("expected bad command code, got %v", err)
	}
}

func TestKindOpcodes(t *testing.T) {
	seen := map[uint8]bool{}
	for _, k := range protocol.Kinds() {
		op, ok := k.Opcode()
		if !ok {
			t.Fatalf("kind %s has no opcode", k)
		}
		if seen[op] {
			t.Fatalf("duplicate opcode %d", op)
		}
		seen[op] = true
	}
	if op, _ := protocol.KindBuySlot.Opcode(); op != 13 {
		t.Fatalf("buy_slot opcode = %d, want 13", op)
	}
}
