package swap

import (
	"encoding/binary"
	"encoding/hex"

	"crosslock/crypto"
)

var (
	sessionPrefix = []byte("swap/session/")
	escrowPrefix  = []byte("swap/escrow/")
	noncePrefix   = []byte("swap/nonce/")
)

func sessionKey(orderHash [32]byte) []byte {
	return append(append([]byte(nil), sessionPrefix...), []byte(hex.EncodeToString(orderHash[:]))...)
}

func escrowKey(id [32]byte) []byte {
	return append(append([]byte(nil), escrowPrefix...), []byte(hex.EncodeToString(id[:]))...)
}

func nonceKey(maker crypto.Address, nonce uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce)
	key := append([]byte(nil), noncePrefix...)
	key = append(key, []byte(hex.EncodeToString(maker.Bytes()))...)
	key = append(key, '/')
	key = append(key, []byte(hex.EncodeToString(buf))...)
	return key
}
