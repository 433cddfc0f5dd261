// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package acnet

import "strings"

// Flag is the bitfield carried in the transit header's flags word.
type Flag uint32

const (
	FlagRetransmission    Flag = 0x00000001
	FlagEncryptedChecksum Flag = 0x00000002
	FlagBlobFragments     Flag = 0x00000004
	FlagServerSwitch      Flag = 0x00000100
	FlagRequestRetransmit Flag = 0x00001000
	FlagRejectRetransmit  Flag = 0x00002000
	FlagAckSequence       Flag = 0x00004000
	FlagDisconnect        Flag = 0x00008000
	FlagLoginRequest      Flag = 0x00010000
	FlagWorldLoginRequest Flag = 0x00020000
	FlagConnectRequest    Flag = 0x00040000
	FlagConnectResponse   Flag = 0x00080000
	FlagNetError          Flag = 0x00100000
	FlagNetErrorDisconnect Flag = 0x00200000
	FlagCICMDCommand      Flag = 0x00400000
	FlagTimeSync          Flag = 0x01000000
	FlagEchoRequest       Flag = 0x02000000
	FlagEchoResponse      Flag = 0x04000000
	FlagFlow              Flag = 0x08000000
)

// payloadFlags are the bits that introduce optional-header or payload bytes.
const payloadFlags = FlagRetransmission | FlagBlobFragments | FlagServerSwitch | FlagRequestRetransmit |
	FlagRejectRetransmit | FlagAckSequence | FlagLoginRequest | FlagWorldLoginRequest |
	FlagConnectRequest | FlagConnectResponse | FlagCICMDCommand | FlagTimeSync |
	FlagEchoRequest | FlagEchoResponse | FlagFlow

func (f Flag) Has(bits Flag) bool { return f&bits == bits }

// Valid rejects combinations the protocol never produces. Most combinations
// are tolerated; only the two poisonous ones are refused.
func (f Flag) Valid() bool {
	if f.Has(FlagLoginRequest | FlagConnectRequest) {
		return false
	}
	if f.Has(FlagDisconnect) && f&payloadFlags != 0 {
		return false
	}
	return true
}

var flagNames = []struct {
	bit  Flag
	name string
}{
	{FlagRetransmission, "Retransmission"},
	{FlagEncryptedChecksum, "EncryptedChecksum"},
	{FlagBlobFragments, "BlobFragments"},
	{FlagServerSwitch, "ServerSwitch"},
	{FlagRequestRetransmit, "RequestRetransmit"},
	{FlagRejectRetransmit, "RejectRetransmit"},
	{FlagAckSequence, "AckSequence"},
	{FlagDisconnect, "Disconnect"},
	{FlagLoginRequest, "LoginRequest"},
	{FlagWorldLoginRequest, "WorldLoginRequest"},
	{FlagConnectRequest, "ConnectRequest"},
	{FlagConnectResponse, "ConnectResponse"},
	{FlagNetError, "NetError"},
	{FlagNetErrorDisconnect, "NetErrorDisconnect"},
	{FlagCICMDCommand, "CICMDCommand"},
	{FlagTimeSync, "TimeSync"},
	{FlagEchoRequest, "EchoRequest"},
	{FlagEchoResponse, "EchoResponse"},
	{FlagFlow, "Flow"},
}

func (f Flag) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.bit != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
