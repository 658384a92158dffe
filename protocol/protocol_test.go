package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"buddyim/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest("ADD alice  bob\r")
	require.NoError(t, err)
	assert.Equal(t, VerbAdd, req.Verb)
	assert.Equal(t, "alice", req.Arg(0))
	assert.Equal(t, "bob", req.Arg(1))
	assert.Equal(t, "", req.Arg(2))

	_, err = ParseRequest("   ")
	assert.ErrorIs(t, err, ErrInvalidPacket)

	req, err = ParseRequest("reg alice")
	assert.ErrorIs(t, err, ErrUnknownVerb, "verbs are case-sensitive")
	assert.Equal(t, "reg", req.Verb)
}

func TestFormatSet(t *testing.T) {
	assert.Equal(t, "SET alice 102 AWAY 9000", FormatSet("alice", models.StatusAway, 9000))
	assert.Equal(t, "GET alice", FormatGet("alice"))
}

func TestParseBuddyReply(t *testing.T) {
	payload := FormatBuddyLine(models.BuddyStatus{
		ID: "bob", StatusCode: "100", StatusWord: "ONLINE", Address: "10.0.0.2", Port: "9000",
	}) + "\n" + FormatBuddyLine(UnknownBuddy("carol"))

	list := ParseBuddyReply(payload)
	require.Len(t, list, 2)

	assert.Equal(t, "bob", list[0].ID)
	assert.True(t, list[0].Online())
	assert.Equal(t, "10.0.0.2", list[0].Address)
	assert.Equal(t, "9000", list[0].Port)

	assert.Equal(t, "carol", list[1].ID)
	assert.Equal(t, "101 OFFLINE", list[1].Status())
	assert.Equal(t, Unknown, list[1].Address)
	assert.Equal(t, Unknown, list[1].Port)
}

func TestParseBuddyReplyLenient(t *testing.T) {
	list := ParseBuddyReply("dave 100\n\n")
	require.Len(t, list, 1)
	assert.Equal(t, "dave", list[0].ID)
	assert.Equal(t, "100", list[0].StatusCode)
	assert.Empty(t, list[0].Address)

	assert.Empty(t, ParseBuddyReply(""))
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("ACCEPT\r\nhello\npartial"))

	line, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, ChatAccept, line)

	line, err = ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	_, err = ReadLine(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, CodeOK))
	assert.Equal(t, "200 OK\n", buf.String())
}
