package amf3

const (
	MarkerUndefined    uint8 = 0x00
	MarkerNull         uint8 = 0x01
	MarkerFalse        uint8 = 0x02
	MarkerTrue         uint8 = 0x03
	MarkerInteger      uint8 = 0x04
	MarkerDouble       uint8 = 0x05
	MarkerString       uint8 = 0x06
	MarkerXMLDoc       uint8 = 0x07
	MarkerDate         uint8 = 0x08
	MarkerArray        uint8 = 0x09
	MarkerObject       uint8 = 0x0A
	MarkerXML          uint8 = 0x0B
	MarkerByteArray    uint8 = 0x0C
	MarkerVectorInt    uint8 = 0x0D
	MarkerVectorUint   uint8 = 0x0E
	MarkerVectorDouble uint8 = 0x0F
	MarkerVectorObject uint8 = 0x10
	MarkerDictionary   uint8 = 0x11
)

const (
	// MaxU29 is the largest value a U29 can carry.
	MaxU29 = 1<<29 - 1

	// Integers in [MinInt, MaxInt] travel as INT, others as DOUBLE.
	MinInt = -1 << 28
	MaxInt = 1<<28 - 1

	emptyString = 1

	traitsInline         = 0x03
	traitsExternalizable = 0x04
	traitsDynamic        = 0x08
	traitsCountShift     = 4
)
