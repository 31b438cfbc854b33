// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package diag carries the core's internal-invariant checks. Every pass in
// this repository is a total function over well-typed input: a failing
// Assert means the compiler itself is wrong, not that the input program
// is. This is distinct from internal/fold's errors, which are the one
// recoverable, located error class the core produces.
package diag

import "fmt"

// Assert panics with a formatted message when cond is false. Used
// throughout the core to state an invariant inline at the point it is
// relied upon.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// Unreachable panics; used in exhaustive type switches' default arm so a
// new tagged-tree variant fails loudly instead of silently doing nothing.
func Unreachable(format string, args ...interface{}) {
	panic(fmt.Sprintf("unreachable: "+format, args...))
}
