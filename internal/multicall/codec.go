// Package multicall implements the aggregate3 batched-call wire format and
// a thin caller that runs batches through a single eth_call round trip.
package multicall

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const wordSize = 32

// aggregate3((address,bool,bytes)[]) selector.
var aggregate3Selector = []byte{0x82, 0xad, 0x56, 0xcb}

type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}

// EncodeBatch builds the full calldata for one aggregate3 invocation:
// selector, offset word (0x20), array length, one offset word per element,
// then each element as (address word, bool word, 0x60, bytes length,
// payload right-padded to a 32-byte multiple).
func EncodeBatch(calls []Call) []byte {
	sizes := make([]int, len(calls))
	body := 0
	for i, c := range calls {
		sizes[i] = 4*wordSize + pad32(len(c.CallData))
		body += sizes[i]
	}

	buf := make([]byte, 0, len(aggregate3Selector)+(2+len(calls))*wordSize+body)
	buf = append(buf, aggregate3Selector...)
	buf = appendUintWord(buf, wordSize)
	buf = appendUintWord(buf, uint64(len(calls)))

	offset := uint64(len(calls)) * wordSize
	for i := range calls {
		buf = appendUintWord(buf, offset)
		offset += uint64(sizes[i])
	}
	for _, c := range calls {
		buf = appendAddressWord(buf, c.Target)
		buf = appendBoolWord(buf, c.AllowFailure)
		buf = appendUintWord(buf, 3*wordSize)
		buf = appendUintWord(buf, uint64(len(c.CallData)))
		buf = appendPadded(buf, c.CallData)
	}
	return buf
}

// DecodeBatch parses an aggregate3 return payload into exactly expectedCount
// results, in call order. A malformed envelope or a count mismatch is an
// error; a malformed element degrades to a failed slot so the batch never
// loses index alignment with its input.
func DecodeBatch(response []byte, expectedCount int) ([]Result, error) {
	arrayOffset, ok := boundedWord(response, 0)
	if !ok {
		return nil, fmt.Errorf("response too short for array offset word")
	}
	length, ok := boundedWord(response, arrayOffset)
	if !ok {
		return nil, fmt.Errorf("response truncated before array length")
	}
	if length != expectedCount {
		return nil, fmt.Errorf("response carries %d results, expected %d", length, expectedCount)
	}

	elemBase := arrayOffset + wordSize
	results := make([]Result, expectedCount)
	for i := 0; i < expectedCount; i++ {
		offsetPos := elemBase + i*wordSize
		if offsetPos+wordSize > len(response) {
			return nil, fmt.Errorf("response truncated at element offset %d", i)
		}
		elemOffset, ok := boundedWord(response, offsetPos)
		if !ok {
			// Offset word present but pointing nowhere valid: degrade the
			// slot, keep its neighbors and the index alignment intact.
			continue
		}
		results[i] = decodeResult(response, elemBase+elemOffset)
	}
	return results, nil
}

// decodeResult reads one (bool success, bytes returnData) tuple.
func decodeResult(response []byte, start int) Result {
	successWord, ok := boundedWord(response, start)
	if !ok {
		return Result{}
	}
	dataOffset, ok := boundedWord(response, start+wordSize)
	if !ok {
		return Result{}
	}
	lengthPos := start + dataOffset
	length, ok := boundedWord(response, lengthPos)
	if !ok {
		return Result{}
	}
	payloadStart := lengthPos + wordSize
	if payloadStart+length > len(response) {
		return Result{}
	}
	data := make([]byte, length)
	copy(data, response[payloadStart:payloadStart+length])
	return Result{Success: successWord != 0, ReturnData: data}
}

// EncodeResults builds an aggregate3 return payload from results. Fake RPC
// backends in tests use it to answer Aggregate calls with controlled data.
func EncodeResults(results []Result) []byte {
	sizes := make([]int, len(results))
	body := 0
	for i, r := range results {
		sizes[i] = 3*wordSize + pad32(len(r.ReturnData))
		body += sizes[i]
	}

	buf := make([]byte, 0, (2+len(results))*wordSize+body)
	buf = appendUintWord(buf, wordSize)
	buf = appendUintWord(buf, uint64(len(results)))

	offset := uint64(len(results)) * wordSize
	for i := range results {
		buf = appendUintWord(buf, offset)
		offset += uint64(sizes[i])
	}
	for _, r := range results {
		buf = appendBoolWord(buf, r.Success)
		buf = appendUintWord(buf, 2*wordSize)
		buf = appendUintWord(buf, uint64(len(r.ReturnData)))
		buf = appendPadded(buf, r.ReturnData)
	}
	return buf
}

// DecodeUint256 extracts the first return word of a slot as an unsigned
// integer. Failed calls and payloads shorter than one word decode to zero
// rather than an error, so one bad slot cannot disturb its neighbors.
func DecodeUint256(r Result) *big.Int {
	if !r.Success || len(r.ReturnData) < wordSize {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(r.ReturnData[:wordSize])
}

// boundedWord reads the 32-byte word at pos as an int. Words whose value
// cannot index into the buffer (high bytes set, or past its end) report
// false, which keeps hostile offsets from driving out-of-range reads.
func boundedWord(buf []byte, pos int) (int, bool) {
	if pos < 0 || pos+wordSize > len(buf) {
		return 0, false
	}
	word := buf[pos : pos+wordSize]
	for _, b := range word[:wordSize-8] {
		if b != 0 {
			return 0, false
		}
	}
	v := binary.BigEndian.Uint64(word[wordSize-8:])
	if v > uint64(len(buf)) {
		return 0, false
	}
	return int(v), true
}

func pad32(n int) int {
	if rem := n % wordSize; rem != 0 {
		return n + wordSize - rem
	}
	return n
}

func appendUintWord(buf []byte, v uint64) []byte {
	var word [wordSize]byte
	binary.BigEndian.PutUint64(word[wordSize-8:], v)
	return append(buf, word[:]...)
}

func appendBoolWord(buf []byte, v bool) []byte {
	if v {
		return appendUintWord(buf, 1)
	}
	return appendUintWord(buf, 0)
}

func appendAddressWord(buf []byte, addr common.Address) []byte {
	var word [wordSize]byte
	copy(word[wordSize-common.AddressLength:], addr.Bytes())
	return append(buf, word[:]...)
}

func appendPadded(buf, data []byte) []byte {
	buf = append(buf, data...)
	if rem := len(data) % wordSize; rem != 0 {
		buf = append(buf, make([]byte, wordSize-rem)...)
	}
	return buf
}
