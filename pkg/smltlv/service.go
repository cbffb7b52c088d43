package smltlv

import "fmt"

// DecodeFrame walks a whole frame from the top level.
func DecodeFrame(buf []byte, visit Visitor) (int, error) {
	return Decode(buf, Unbounded, 0, visit)
}

// Decode reads up to items elements at the given nesting level, descending
// into lists, and returns the number of bytes consumed. An end marker stops
// the current level early. With Unbounded items, running out of buffer is
// not an error.
func Decode(buf []byte, items int, level int, visit Visitor) (int, error) {
	if level > MaxDepth {
		return 0, ErrTooDeep
	}
	off := 0
	for pos := 0; items == Unbounded || pos < items; pos++ {
		if off >= len(buf) {
			if items == Unbounded {
				return off, nil
			}
			return off, fmt.Errorf("level %d position %d: %w", level, pos, ErrTruncated)
		}

		kind, length, hdr, err := readHeader(buf[off:])
		if err != nil {
			return off, fmt.Errorf("level %d position %d: %w", level, pos, err)
		}
		el := Element{Level: level, Position: pos, Kind: kind}

		if kind == KindList {
			off += hdr
			el.Items = length
			visit(el)
			n, err := Decode(buf[off:], length, level+1, visit)
			off += n
			if err != nil {
				return off, err
			}
			continue
		}

		if kind == KindOctetString && length == 0 {
			el.Kind = KindEndMarker
			visit(el)
			return off + hdr, nil
		}

		// Scalar lengths include the type/length bytes.
		size := length - hdr
		if size < 0 {
			return off, fmt.Errorf("level %d position %d: %w: %d", level, pos, ErrInvalidLength, length)
		}
		if off+hdr+size > len(buf) {
			return off, fmt.Errorf("level %d position %d: %w", level, pos, ErrTruncated)
		}
		payload := buf[off+hdr : off+hdr+size]

		switch kind {
		case KindOctetString:
			el.Bytes = payload
		case KindBoolean:
			if size < 1 {
				return off, fmt.Errorf("level %d position %d: %w: empty boolean", level, pos, ErrInvalidLength)
			}
			el.Bool = payload[0] != 0
		case KindSignedInt, KindUnsignedInt:
			if size > 8 {
				return off, fmt.Errorf("level %d position %d: %w: %d bytes", level, pos, ErrIntegerTooWide, size)
			}
			var u uint64
			for _, b := range payload {
				u = u<<8 | uint64(b)
			}
			el.Uint = u
			el.Int = int64(u)
		}
		visit(el)
		off += hdr + size
	}
	return off, nil
}

// readHeader returns kind, declared length and the number of header bytes.
// While the high bit of a header byte is set, the low nibble of the next
// byte extends the length.
func readHeader(buf []byte) (Kind, int, int, error) {
	first := buf[0]
	kind := Kind((first >> 4) & 0x7)
	length := int(first & 0x0f)
	hdr := 1
	for buf[hdr-1]&0x80 != 0 {
		if hdr >= len(buf) {
			return 0, 0, 0, ErrTruncated
		}
		if hdr >= maxHeaderBytes {
			return 0, 0, 0, ErrInvalidLength
		}
		length = length<<4 | int(buf[hdr]&0x0f)
		hdr++
	}
	switch kind {
	case KindOctetString, KindBoolean, KindSignedInt, KindUnsignedInt, KindList:
		return kind, length, hdr, nil
	}
	return 0, 0, 0, fmt.Errorf("%w: %d", ErrUnknownType, kind)
}
