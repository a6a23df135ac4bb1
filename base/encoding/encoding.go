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
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/juju/errors"
)

// maxLength bounds lengths read from a stream so that a corrupted header
// does not trigger a huge allocation.
const maxLength = 1 << 30

// WriteMatrix writes the shape and the values of a matrix to byte stream.
func WriteMatrix(w io.Writer, m [][]float64) error {
	cols := 0
	if len(m) > 0 {
		cols = len(m[0])
	}
	if err := binary.Write(w, binary.LittleEndian, [2]int64{int64(len(m)), int64(cols)}); err != nil {
		return errors.Trace(err)
	}
	for i := range m {
		if len(m[i]) != cols {
			return errors.NotValidf("ragged matrix row %d", i)
		}
		if err := binary.Write(w, binary.LittleEndian, m[i]); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadMatrix reads a matrix written by WriteMatrix from byte stream.
func ReadMatrix(r io.Reader) ([][]float64, error) {
	var shape [2]int64
	if err := binary.Read(r, binary.LittleEndian, &shape); err != nil {
		return nil, errors.Trace(err)
	}
	if shape[0] < 0 || shape[1] < 0 || shape[0]*shape[1] > maxLength {
		return nil, errors.NotValidf("matrix shape %v", shape)
	}
	m := make([][]float64, shape[0])
	for i := range m {
		m[i] = make([]float64, shape[1])
		if err := binary.Read(r, binary.LittleEndian, m[i]); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return m, nil
}

// WriteString writes string to byte stream.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads string from byte stream.
func ReadString(r io.Reader) (string, error) {
	data, err := ReadBytes(r)
	return string(data), err
}

// WriteBytes writes bytes to byte stream.
func WriteBytes(w io.Writer, s []byte) error {
	err := binary.Write(w, binary.LittleEndian, int32(len(s)))
	if err != nil {
		return errors.Trace(err)
	}
	n, err := w.Write(s)
	if err != nil {
		return errors.Trace(err)
	} else if n != len(s) {
		return errors.New("fail to write string")
	}
	return nil
}

// ReadBytes reads bytes from byte stream.
func ReadBytes(r io.Reader) ([]byte, error) {
	var length int32
	err := binary.Read(r, binary.LittleEndian, &length)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if length < 0 {
		return nil, errors.NotValidf("length %d", length)
	}
	data := make([]byte, length)
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// WriteGob writes object to byte stream.
func WriteGob(w io.Writer, v any) error {
	buffer := bytes.NewBuffer(nil)
	encoder := gob.NewEncoder(buffer)
	err := encoder.Encode(v)
	if err != nil {
		return errors.Trace(err)
	}
	return WriteBytes(w, buffer.Bytes())
}

// ReadGob read object from byte stream.
func ReadGob(r io.Reader, v any) error {
	data, err := ReadBytes(r)
	if err != nil {
		return err
	}
	buffer := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buffer)
	return errors.Trace(decoder.Decode(v))
}
