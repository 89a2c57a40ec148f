package values

import "github.com/runelang/rune/hash"

// Items and hashes of the built-in runtime types. Host modules that
// attach instance functions to built-in values key them by these
// hashes; the default modules register the matching items so the names
// resolve in scripts.
var (
	UnitItem           = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("unit"))
	BoolItem           = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("bool"))
	ByteItem           = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("byte"))
	CharItem           = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("char"))
	IntegerItem        = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("int"))
	FloatItem          = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("float"))
	TypeItem           = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("type"))
	StringItem         = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("string"), hash.StrComponent("String"))
	BytesItem          = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("bytes"), hash.StrComponent("Bytes"))
	VecItem            = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("vec"), hash.StrComponent("Vec"))
	TupleItem          = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("tuple"), hash.StrComponent("Tuple"))
	ObjectItem         = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("object"), hash.StrComponent("Object"))
	FutureItem         = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("future"), hash.StrComponent("Future"))
	StreamItem         = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("stream"), hash.StrComponent("Stream"))
	GeneratorItem      = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("generator"), hash.StrComponent("Generator"))
	GeneratorStateItem = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("generator"), hash.StrComponent("GeneratorState"))
	OptionItem         = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("option"), hash.StrComponent("Option"))
	ResultItem         = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("result"), hash.StrComponent("Result"))
	FunctionItem       = hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("ops"), hash.StrComponent("Function"))
)

var (
	UnitTypeHash           = hash.Type(UnitItem)
	BoolTypeHash           = hash.Type(BoolItem)
	ByteTypeHash           = hash.Type(ByteItem)
	CharTypeHash           = hash.Type(CharItem)
	IntegerTypeHash        = hash.Type(IntegerItem)
	FloatTypeHash          = hash.Type(FloatItem)
	TypeTypeHash           = hash.Type(TypeItem)
	StringTypeHash         = hash.Type(StringItem)
	BytesTypeHash          = hash.Type(BytesItem)
	VecTypeHash            = hash.Type(VecItem)
	TupleTypeHash          = hash.Type(TupleItem)
	ObjectTypeHash         = hash.Type(ObjectItem)
	FutureTypeHash         = hash.Type(FutureItem)
	StreamTypeHash         = hash.Type(StreamItem)
	GeneratorTypeHash      = hash.Type(GeneratorItem)
	GeneratorStateTypeHash = hash.Type(GeneratorStateItem)
	OptionTypeHash         = hash.Type(OptionItem)
	ResultTypeHash         = hash.Type(ResultItem)
	FunctionTypeHash       = hash.Type(FunctionItem)
)

// Variant hashes of the internal enums. These double as constructor
// function hashes once the internal enums are installed.
var (
	OptionSomeHash             = hash.Type(OptionItem.Child("Some"))
	OptionNoneHash             = hash.Type(OptionItem.Child("None"))
	ResultOkHash               = hash.Type(ResultItem.Child("Ok"))
	ResultErrHash              = hash.Type(ResultItem.Child("Err"))
	GeneratorStateYieldedHash  = hash.Type(GeneratorStateItem.Child("Yielded"))
	GeneratorStateCompleteHash = hash.Type(GeneratorStateItem.Child("Complete"))
)
