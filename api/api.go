// Package api declares the wire schema spoken between the quiz server and
// its clients. Every websocket text frame carries a single tagged envelope.
package api

import "encoding/json"

type RequestType string

const (
	RequestTypeUnknown        RequestType = ""
	RequestTypeTryJoin        RequestType = "tryJoin"
	RequestTypeJoin           RequestType = "join"
	RequestTypeAnswerSelected RequestType = "answerSelected"
	RequestTypeDisconnect     RequestType = "disconnect"
)

// Request is the client-to-server envelope.
//
// Servers decode into Request[json.RawMessage] first and dispatch on Type
// before decoding Data into the concrete payload.
type Request[T any] struct {
	Type RequestType `json:"type"`
	Data T           `json:"data,omitempty"`
}

type ResponseType string

const (
	ResponseTypeError               ResponseType = "error"
	ResponseTypeTryJoin             ResponseType = "tryJoin"
	ResponseTypeJoin                ResponseType = "join"
	ResponseTypePlayersUpdate       ResponseType = "playersUpdate"
	ResponseTypeNextQuestion        ResponseType = "nextQuestion"
	ResponseTypeQuestionUpdate      ResponseType = "questionUpdate"
	ResponseTypeQuestionEnded       ResponseType = "questionEnded"
	ResponseTypeShowLeaderboard     ResponseType = "showLeaderboard"
	ResponseTypeTeacherDisconnected ResponseType = "teacherDisconnected"
)

// Response is the server-to-client envelope.
type Response[T any] struct {
	Type    ResponseType `json:"type"`
	Message string       `json:"message,omitempty"`
	Data    T            `json:"data,omitempty"`
}

// DecodeJSON decodes a raw envelope payload into a concrete type.
func DecodeJSON[T any](data json.RawMessage) (res T, err error) {
	if len(data) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, err
	}
	return res, nil
}

// Reserved refusal and close reasons. These strings are part of the wire
// contract and must not change.
const (
	ReasonLobbyLocked      = "The lobby is locked"
	ReasonNotInWaitingList = "Player not in waiting list"
	ReasonNicknameTaken    = "Nickname already taken"
	ReasonGoodbye          = "Goodbye"
	ReasonBadFrame         = "bad frame"
)
