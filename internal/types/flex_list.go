// flex_list.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package types

import (
	"bytes"
	"encoding/json"
)

// FlexList decodes a remote procedure's answer. PostgREST returns a set-returning function's
// rows as an array, a scalar function's composite value as a bare object, and nothing at all
// for a void call. Each of those lands here as a list of zero or more rows.
type FlexList[T any] []T

// UnmarshalJSON accepts null, a single row or an array of rows
func (f *FlexList[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}

	if data[0] != '[' {
		var row T
		if err := json.Unmarshal(data, &row); err != nil {
			return err
		}
		*f = FlexList[T]{row}
		return nil
	}

	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	*f = rows
	return nil
}

// First is the row a single-result procedure answered with
func (f FlexList[T]) First() (T, bool) {
	var row T
	if len(f) == 0 {
		return row, false
	}
	return f[0], true
}
