// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoding

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestWriteMatrix(t *testing.T) {
	a := [][]float64{{1, 2, 3}, {4, 5, 6}}
	buf := bytes.NewBuffer(nil)
	err := WriteMatrix(buf, a)
	assert.NoError(t, err)
	b, err := ReadMatrix(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)

	// empty matrix
	buf.Reset()
	assert.NoError(t, WriteMatrix(buf, nil))
	b, err = ReadMatrix(buf)
	assert.NoError(t, err)
	assert.Empty(t, b)

	// ragged matrix
	err = WriteMatrix(bytes.NewBuffer(nil), [][]float64{{1, 2}, {3}})
	assert.True(t, errors.IsNotValid(err))

	// truncated stream
	buf.Reset()
	assert.NoError(t, WriteMatrix(buf, a))
	_, err = ReadMatrix(bytes.NewReader(buf.Bytes()[:20]))
	assert.Error(t, err)
}

func TestWriteString(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, a)
	assert.NoError(t, err)
	var b string
	b, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteGob(t *testing.T) {
	a := []string{"a", "b", "c"}
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, a)
	assert.NoError(t, err)
	var b []string
	err = ReadGob(buf, &b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}
