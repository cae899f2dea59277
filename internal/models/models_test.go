package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)
}

func TestBaseModelBeforeCreateKeepsID(t *testing.T) {
	session := QuizSession{BaseModel: BaseModel{ID: "live-session-id"}}
	require.NoError(t, session.BeforeCreate(nil))
	require.Equal(t, "live-session-id", session.ID)

	round := &QuizRound{}
	require.NoError(t, round.BeforeCreate(nil))
	require.NotEmpty(t, round.ID)
}
