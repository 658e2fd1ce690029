package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticle_Clone_DoesNotAlias(t *testing.T) {
	now := time.Now()
	a := NewArticle(NewAccountID(), "title", "text", now)
	a.PublishAt = &now

	c := a.Clone()
	later := now.Add(time.Hour)
	*c.PublishAt = later

	assert.Equal(t, now, *a.PublishAt)
	assert.Equal(t, a.ID, c.ID)
}

func TestIDs_JSONRoundTripAsStrings(t *testing.T) {
	a := NewArticle(NewAccountID(), "title", "text", time.Now().UTC())

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"`+a.ID.String()+`"`)
	assert.Contains(t, string(data), `"authorId":"`+a.AuthorID.String()+`"`)

	var back Article
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a.ID, back.ID)
	assert.Equal(t, a.AuthorID, back.AuthorID)
}

func TestParseArticleID_Malformed(t *testing.T) {
	_, err := ParseArticleID("not-a-uuid")
	assert.Error(t, err)
}

func TestAccount_PasswordHashNotSerialised(t *testing.T) {
	acc := Account{ID: NewAccountID(), Email: "oleg@example.com", PasswordHash: "$2a$08$secret"}
	data, err := json.Marshal(acc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}
