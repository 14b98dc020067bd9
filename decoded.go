package pack

import "fmt"

// FileType classifies an entry's payload. Classification tries structural
// sniffing (magic bytes, container-relative path conventions) before falling
// back to the file extension.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeDB
	TypeLoc
	TypeText
	TypeAnimPack
	TypeUnitVariant
	TypeAnimsTable
	TypeAnimFragment
	TypePortraitSettings
	TypeESF
	TypeMatchedCombat
	TypeUIC
	TypeImage
	TypeAudio
	TypeVideo
	TypeRigidModel
)

var fileTypeNames = map[FileType]string{
	TypeUnknown:          "unknown",
	TypeDB:               "db",
	TypeLoc:              "loc",
	TypeText:             "text",
	TypeAnimPack:         "animpack",
	TypeUnitVariant:      "unit_variant",
	TypeAnimsTable:       "anims_table",
	TypeAnimFragment:     "anim_fragment",
	TypePortraitSettings: "portrait_settings",
	TypeESF:              "esf",
	TypeMatchedCombat:    "matched_combat",
	TypeUIC:              "uic",
	TypeImage:            "image",
	TypeAudio:            "audio",
	TypeVideo:            "video",
	TypeRigidModel:       "rigid_model",
}

func (t FileType) String() string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("file_type(%d)", int(t))
}

// Decoded is the closed union over decoded entry payloads. The members are
// *DB, *Loc, *Text, *AnimPack, *UnitVariant, *AnimsTable, *AnimFragment and
// *Opaque; decode/encode sites switch exhaustively over these. Adding a
// member is a compile-time change, not a runtime registration.
type Decoded interface {
	FileType() FileType
	isDecoded()
}

// Opaque is the decoded form of asset kinds whose internal codec lives
// outside this module (images, audio, video, rigid models, and the remaining
// structural formats handled by external tooling). It preserves the payload
// bytes exactly.
type Opaque struct {
	Kind FileType
	Data []byte
}

func (o *Opaque) FileType() FileType { return o.Kind }
func (o *Opaque) isDecoded()         {}

// encodeDecoded serializes any member of the Decoded union back to payload
// bytes. The switch is exhaustive over the closed union.
func encodeDecoded(d Decoded) ([]byte, error) {
	switch v := d.(type) {
	case *DB:
		return v.Encode()
	case *Loc:
		return v.Encode()
	case *Text:
		return v.Encode(), nil
	case *AnimPack:
		return v.Encode()
	case *UnitVariant:
		return v.Encode()
	case *AnimsTable:
		return v.Encode()
	case *AnimFragment:
		return v.Encode()
	case *Opaque:
		out := make([]byte, len(v.Data))
		copy(out, v.Data)
		return out, nil
	default:
		return nil, fmt.Errorf("pack: unhandled decoded variant %T", d)
	}
}

// cloneDecoded deep-copies a member of the Decoded union.
func cloneDecoded(d Decoded) (Decoded, error) {
	if d == nil {
		return nil, nil
	}
	switch v := d.(type) {
	case *DB:
		return v.Clone(), nil
	case *Loc:
		return v.Clone(), nil
	case *Text:
		c := *v
		return &c, nil
	case *AnimPack:
		return v.Clone()
	case *UnitVariant:
		return v.Clone(), nil
	case *AnimsTable:
		return v.Clone(), nil
	case *AnimFragment:
		return v.Clone(), nil
	case *Opaque:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return &Opaque{Kind: v.Kind, Data: data}, nil
	default:
		return nil, fmt.Errorf("pack: unhandled decoded variant %T", d)
	}
}
