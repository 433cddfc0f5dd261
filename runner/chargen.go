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

package runner

import "github.com/amoeba/acload/acnet"

// Heritage and gender constants for character generation.
const (
	HeritageAluvian  = 1
	HeritageGharu    = 2
	HeritageSho      = 3
	GenderMale       = 1
	GenderFemale     = 2
)

// CharacterBuilder assembles a character-generation blob with load-test
// defaults: an Aluvian male with flat attributes and every skill untrained.
type CharacterBuilder struct {
	result acnet.CharGenResult
}

func NewCharacterBuilder(name string) *CharacterBuilder {
	return &CharacterBuilder{
		result: acnet.CharGenResult{
			Heritage:     HeritageAluvian,
			Gender:       GenderMale,
			Strength:     10,
			Endurance:    10,
			Coordination: 10,
			Quickness:    10,
			Focus:        10,
			Self:         10,
			Name:         name,
		},
	}
}

func (b *CharacterBuilder) Heritage(h uint32) *CharacterBuilder {
	b.result.Heritage = h
	return b
}

func (b *CharacterBuilder) Gender(g uint32) *CharacterBuilder {
	b.result.Gender = g
	return b
}

func (b *CharacterBuilder) Attributes(str, end, coo, qui, foc, self uint32) *CharacterBuilder {
	b.result.Strength = str
	b.result.Endurance = end
	b.result.Coordination = coo
	b.result.Quickness = qui
	b.result.Focus = foc
	b.result.Self = self
	return b
}

func (b *CharacterBuilder) Slot(slot uint32) *CharacterBuilder {
	b.result.Slot = slot
	return b
}

func (b *CharacterBuilder) Build() *acnet.CharGenResult {
	r := b.result
	return &r
}
