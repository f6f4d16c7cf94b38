package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal encodes m as a single JSON object with a leading "type" field. The
// output never contains a newline, so it can be written as one journal line.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("marshal message: nil message")
	}
	typ, err := json.Marshal(m.Type())
	if err != nil {
		return nil, fmt.Errorf("marshal message type: %w", err)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Type(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("marshal %s: payload is not an object", m.Type())
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(typ) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if !bytes.Equal(body, []byte("{}")) {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

// Unmarshal decodes a line produced by Marshal. Unknown message types are an
// error; the journal never skips what it cannot read.
func Unmarshal(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	var (
		msg Message
		err error
	)
	switch head.Type {
	case TypeRunStart:
		msg, err = decode[RunStart](data)
	case TypeWipeApply:
		msg, err = decode[WipeApply](data)
	case TypeDeploymentInitialize:
		msg, err = decode[DeploymentInitialize](data)
	case TypeCallInitialize:
		msg, err = decode[CallInitialize](data)
	case TypeStaticCallInitialize:
		msg, err = decode[StaticCallInitialize](data)
	case TypeSendDataInitialize:
		msg, err = decode[SendDataInitialize](data)
	case TypeContractAtInitialize:
		msg, err = decode[ContractAtInitialize](data)
	case TypeReadEventArgumentInitialize:
		msg, err = decode[ReadEventArgumentInitialize](data)
	case TypeEncodeFunctionCallInitialize:
		msg, err = decode[EncodeFunctionCallInitialize](data)
	case TypeDeploymentComplete, TypeCallComplete, TypeStaticCallExecutionComplete, TypeSendDataComplete:
		var c ExecutionComplete
		c, err = decode[ExecutionComplete](data)
		c.Kind = head.Type
		msg = c
	case TypeNetworkInteractionRequest:
		msg, err = decode[NetworkInteractionRequest](data)
	case TypeTransactionPrepareSend:
		msg, err = decode[TransactionPrepareSend](data)
	case TypeTransactionSend:
		msg, err = decode[TransactionSend](data)
	case TypeTransactionConfirm:
		msg, err = decode[TransactionConfirm](data)
	case TypeStaticCallComplete:
		msg, err = decode[StaticCallComplete](data)
	case TypeOnchainInteractionBumpFees:
		msg, err = decode[OnchainInteractionBumpFees](data)
	case TypeOnchainInteractionDropped:
		msg, err = decode[OnchainInteractionDropped](data)
	case TypeOnchainInteractionReplacedByUser:
		msg, err = decode[OnchainInteractionReplacedByUser](data)
	case TypeOnchainInteractionTimeout:
		msg, err = decode[OnchainInteractionTimeout](data)
	case "":
		return nil, fmt.Errorf("unmarshal message: missing type")
	default:
		return nil, fmt.Errorf("unmarshal message: unknown type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", head.Type, err)
	}
	return msg, nil
}

func decode[T Message](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
