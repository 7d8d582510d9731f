package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/provider/tts/mock"
	"github.com/MrWong99/earshot/pkg/types"
)

func TestCollect(t *testing.T) {
	t.Parallel()

	voice := types.VoiceProfile{ID: "onyx"}
	startErr := errors.New("dial failed")

	tests := []struct {
		name    string
		p       *mock.Provider
		want    string
		wantErr error
	}{
		{name: "concatenates chunks", p: &mock.Provider{SynthesizeChunks: [][]byte{[]byte("ab"), []byte("cd")}}, want: "abcd"},
		{name: "start error", p: &mock.Provider{SynthesizeErr: startErr}, wantErr: startErr},
		{name: "empty stream", p: &mock.Provider{}, wantErr: tts.ErrNoAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tts.Collect(context.Background(), tt.p, "Hello.", voice)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("audio = %q, want %q", got, tt.want)
			}
			if calls := tt.p.Calls(); len(calls) != 1 || calls[0].Voice.ID != "onyx" {
				t.Errorf("calls = %+v", calls)
			}
		})
	}
}

func TestCollectCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &mock.Provider{SynthesizeChunks: [][]byte{[]byte("x")}}
	if _, err := tts.Collect(ctx, p, "Hi.", types.VoiceProfile{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
