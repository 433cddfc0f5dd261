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

// SkillCount is the fixed number of skill entries the server expects in a
// character-generation blob.
const SkillCount = 55

// CharGenResult describes a new character. Zero values are valid for every
// appearance field.
type CharGenResult struct {
	Heritage       uint32
	Gender         uint32
	EyesStrip      uint32
	NoseStrip      uint32
	MouthStrip     uint32
	HairColor      uint32
	EyeColor       uint32
	HairStyle      uint32
	HeadgearStyle  uint32
	HeadgearColor  uint32
	ShirtStyle     uint32
	ShirtColor     uint32
	TrousersStyle  uint32
	TrousersColor  uint32
	FootwearStyle  uint32
	FootwearColor  uint32
	SkinShade      uint32
	HairShade      uint32
	HeadgearShade  uint32
	ShirtShade     uint32
	TrousersShade  uint32
	FootwearShade  uint32
	TemplateNum    uint32
	Strength       uint32
	Endurance      uint32
	Coordination   uint32
	Quickness      uint32
	Focus          uint32
	Self           uint32
	Slot           uint32
	ClassID        uint32
	Skills         [SkillCount]uint32
	Name           string
	StartArea      uint32
	IsAdmin        uint32
	IsEnvoy        uint32
	Validation     uint32
}

// EncodeCharacterCreate serializes a character-generation request for the
// given account.
func EncodeCharacterCreate(account string, c *CharGenResult) []byte {
	b := appendUint32(nil, OpCharacterCreate)
	b = appendString16L(b, account)
	b = appendUint32(b, 1) // blob format version

	for _, v := range []uint32{
		c.Heritage, c.Gender,
		c.EyesStrip, c.NoseStrip, c.MouthStrip,
		c.HairColor, c.EyeColor, c.HairStyle,
		c.HeadgearStyle, c.HeadgearColor,
		c.ShirtStyle, c.ShirtColor,
		c.TrousersStyle, c.TrousersColor,
		c.FootwearStyle, c.FootwearColor,
		c.SkinShade, c.HairShade, c.HeadgearShade,
		c.ShirtShade, c.TrousersShade, c.FootwearShade,
		c.TemplateNum,
		c.Strength, c.Endurance, c.Coordination,
		c.Quickness, c.Focus, c.Self,
		c.Slot, c.ClassID,
	} {
		b = appendUint32(b, v)
	}

	b = appendUint32(b, SkillCount)
	for _, s := range c.Skills {
		b = appendUint32(b, s)
	}

	b = appendString16L(b, c.Name)
	b = appendUint32(b, c.StartArea)
	b = appendUint32(b, c.IsAdmin)
	b = appendUint32(b, c.IsEnvoy)
	b = appendUint32(b, c.Validation)
	return b
}
