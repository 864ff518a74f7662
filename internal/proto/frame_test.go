package proto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func mustRecord(t *testing.T, recType string, payload any) *Record {
	t.Helper()
	rec, err := NewRecord(recType, payload)
	if err != nil {
		t.Fatalf("NewRecord(%s): %v", recType, err)
	}
	return rec
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := mustRecord(t, TypeMessage, MessageData{Content: "hello there"})
	frame, err := Encode(rec, 1024)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	dec := NewDecoder(1024)
	dec.Feed(frame)
	got, err := dec.Next()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got == nil {
		t.Fatal("expected a complete record")
	}
	if got.Type != TypeMessage {
		t.Fatalf("type = %q, want %q", got.Type, TypeMessage)
	}
	var data MessageData
	if err := got.DecodeData(&data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Content != "hello there" {
		t.Fatalf("content = %q", data.Content)
	}
	if dec.Buffered() != 0 {
		t.Fatalf("expected empty buffer, %d bytes left", dec.Buffered())
	}
}

// Splitting the stream at every possible offset must reconstruct the
// original record sequence exactly.
func TestDecodeEverySplitOffset(t *testing.T) {
	records := []*Record{
		mustRecord(t, TypeConnect, ConnectData{Username: "alice"}),
		mustRecord(t, TypeJoinRoom, JoinRoomData{Room: "general"}),
		mustRecord(t, TypeMessage, MessageData{Content: "first"}),
	}
	var stream []byte
	for _, rec := range records {
		frame, err := Encode(rec, 4096)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		stream = append(stream, frame...)
	}

	for split := 0; split <= len(stream); split++ {
		dec := NewDecoder(4096)
		var got []*Record
		for _, chunk := range [][]byte{stream[:split], stream[split:]} {
			dec.Feed(chunk)
			for {
				rec, err := dec.Next()
				if err != nil {
					t.Fatalf("split %d: decode: %v", split, err)
				}
				if rec == nil {
					break
				}
				got = append(got, rec)
			}
		}
		if len(got) != len(records) {
			t.Fatalf("split %d: got %d records, want %d", split, len(got), len(records))
		}
		for i := range records {
			if got[i].Type != records[i].Type {
				t.Fatalf("split %d: record %d type %q, want %q", split, i, got[i].Type, records[i].Type)
			}
			if !bytes.Equal(got[i].Data, records[i].Data) {
				t.Fatalf("split %d: record %d data mismatch", split, i)
			}
		}
	}
}

func TestDecodeByteAtATime(t *testing.T) {
	rec := mustRecord(t, TypePrivateMessage, PrivateMessageData{To: "bob", Content: "psst"})
	frame, err := Encode(rec, 4096)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	dec := NewDecoder(4096)
	for i, b := range frame {
		dec.Feed([]byte{b})
		got, err := dec.Next()
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if i < len(frame)-1 {
			if got != nil {
				t.Fatalf("byte %d: record completed early", i)
			}
			continue
		}
		if got == nil {
			t.Fatal("record not completed after final byte")
		}
	}
}

func TestDecodePartialIsNotAnError(t *testing.T) {
	dec := NewDecoder(1024)
	dec.Feed([]byte{0x00, 0x00})
	rec, err := dec.Next()
	if err != nil {
		t.Fatalf("partial length prefix must not error: %v", err)
	}
	if rec != nil {
		t.Fatal("partial frame produced a record")
	}
}

func TestDecodeZeroLengthFrame(t *testing.T) {
	dec := NewDecoder(1024)
	dec.Feed([]byte{0, 0, 0, 0})
	if _, err := dec.Next(); !errors.Is(err, ErrZeroLengthFrame) {
		t.Fatalf("expected ErrZeroLengthFrame, got %v", err)
	}
}

func TestDecodeFrameTooLarge(t *testing.T) {
	dec := NewDecoder(16)
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, 1<<20)
	dec.Feed(prefix)
	if _, err := dec.Next(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	rec := mustRecord(t, TypeMessage, MessageData{Content: string(big)})
	if _, err := Encode(rec, 128); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeMalformedBody(t *testing.T) {
	body := []byte("{not json")
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	dec := NewDecoder(1024)
	dec.Feed(frame)
	if _, err := dec.Next(); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestDecodeCoalescedFrames(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		frame, err := Encode(mustRecord(t, TypeMessage, MessageData{Content: "m"}), 1024)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		stream = append(stream, frame...)
	}

	dec := NewDecoder(1024)
	dec.Feed(stream)
	count := 0
	for {
		rec, err := dec.Next()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec == nil {
			break
		}
		count++
	}
	if count != 5 {
		t.Fatalf("decoded %d records, want 5", count)
	}
}
