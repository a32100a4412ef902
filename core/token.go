// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"strconv"
	"strings"
)

// tokenSep separates token fields. The identity is always the last field so
// it may itself contain the separator (AT-URIs and similar identifiers do).
const tokenSep = ":"

// Token is the decoded form of a per-item correlation key.
type Token struct {
	Collection Collection
	Identity   string
	ChunkIndex int
	Position   int
}

// EncodeToken builds the correlation key submitted alongside one item.
// Identity values need not be globally unique across collections; the
// collection is part of the token so decoding is unambiguous.
func EncodeToken(c Collection, identity string, chunkIndex, position int) string {
	return strings.Join([]string{
		string(c),
		strconv.Itoa(chunkIndex),
		strconv.Itoa(position),
		identity,
	}, tokenSep)
}

// DecodeToken parses a correlation key back into its fields. Encode then
// decode recovers the collection and identity exactly.
func DecodeToken(token string) (Token, error) {
	parts := strings.SplitN(token, tokenSep, 4)
	if len(parts) != 4 {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}
	chunkIndex, err := strconv.Atoi(parts[1])
	if err != nil {
		return Token{}, fmt.Errorf("%w: chunk index in %q", ErrMalformedToken, token)
	}
	position, err := strconv.Atoi(parts[2])
	if err != nil {
		return Token{}, fmt.Errorf("%w: position in %q", ErrMalformedToken, token)
	}
	if parts[0] == "" || parts[3] == "" {
		return Token{}, fmt.Errorf("%w: empty field in %q", ErrMalformedToken, token)
	}
	return Token{
		Collection: Collection(parts[0]),
		Identity:   parts[3],
		ChunkIndex: chunkIndex,
		Position:   position,
	}, nil
}
