// Copyright 2025 PanFS Authors
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

package common

import "strings"

// Remote names may contain a literal '/', so path strings escape it as "\/"
// and every splitter here honours that escape. A backslash escapes exactly
// the character after it.

// splitRaw splits on unescaped separators, keeping escape sequences inside
// the returned segments.
func splitRaw(p string) []string {
	var segs []string
	var b strings.Builder
	escaped := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case escaped:
			b.WriteByte('\\')
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '/':
			segs = append(segs, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if escaped {
		b.WriteByte('\\')
	}
	segs = append(segs, b.String())
	return segs
}

// NormalizePath cleans a path into canonical absolute form: leading "/",
// no trailing slash, "." and ".." segments collapsed. The root is "/".
// Escaped separators inside names are preserved.
func NormalizePath(p string) string {
	var out []string
	for _, seg := range splitRaw(p) {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

// SplitPath splits a path into its unescaped segment names. The root
// yields nil.
func SplitPath(p string) []string {
	p = NormalizePath(p)
	if p == "/" {
		return nil
	}
	raw := splitRaw(p[1:])
	names := make([]string, len(raw))
	for i, seg := range raw {
		names[i] = UnescapeName(seg)
	}
	return names
}

// JoinPath joins already-escaped path fragments into a normalized absolute
// path.
func JoinPath(parts ...string) string {
	return NormalizePath(strings.Join(parts, "/"))
}

// ParentPath returns the parent directory of a path. The root is its own
// parent.
func ParentPath(p string) string {
	p = NormalizePath(p)
	if p == "/" {
		return "/"
	}
	raw := splitRaw(p[1:])
	if len(raw) == 1 {
		return "/"
	}
	return "/" + strings.Join(raw[:len(raw)-1], "/")
}

// BaseName returns the unescaped final segment of a path, or "" for the
// root.
func BaseName(p string) string {
	p = NormalizePath(p)
	if p == "/" {
		return ""
	}
	raw := splitRaw(p[1:])
	return UnescapeName(raw[len(raw)-1])
}

// SplitExt splits a name into stem and extension. The extension includes the
// leading dot; a name with no dot (or only a leading dot) has extension "".
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// RelParts parses a possibly-relative path expression into an "up" count and
// the remaining unescaped segment names. Leading ".." segments move up one
// level each; "." segments are dropped. A leading "/" marks the expression
// absolute and clamps up to 0.
func RelParts(p string) (up int, parts []string, absolute bool) {
	if strings.HasPrefix(p, "/") {
		absolute = true
	}
	for _, seg := range splitRaw(p) {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			} else if !absolute {
				up++
			}
		default:
			parts = append(parts, UnescapeName(seg))
		}
	}
	return up, parts, absolute
}

// EscapeName escapes separator and escape characters inside a single name
// so the name can be embedded in a path string without ambiguity.
func EscapeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "\\\\")
	return strings.ReplaceAll(name, "/", "\\/")
}

// UnescapeName reverses EscapeName.
func UnescapeName(seg string) string {
	if !strings.ContainsRune(seg, '\\') {
		return seg
	}
	var b strings.Builder
	escaped := false
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ContainsSeparator reports whether any of the names contains a literal '/',
// which rules out the remote literal-path lookup fast path.
func ContainsSeparator(names []string) bool {
	for _, n := range names {
		if strings.ContainsRune(n, '/') {
			return true
		}
	}
	return false
}
