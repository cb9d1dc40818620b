package dialog

// Имена шагов. Значение шага хранится в Fields (или в Draft внутри цикла позиций) под тем же ключом.
const (
	FieldShop           = "shop"
	FieldSubwarehouse   = "subwarehouse"
	FieldWarehouse      = "warehouse"
	FieldProduct        = "product"
	FieldProductName    = "product_name"
	FieldMaterial       = "material"
	FieldMaterialName   = "material_name"
	FieldQuantity       = "quantity"
	FieldPrice          = "price"
	FieldPromoQuantity  = "promo_quantity"
	FieldPromoPrice     = "promo_price"
	FieldPhoto          = "photo"
	FieldUsedQuantity   = "used_quantity"
	FieldDefectQuantity = "defect_quantity"
	FieldReturnDate     = "return_date"
	FieldTotalPrice     = "total_price"
	FieldComment        = "comment"
	FieldAddAnother     = "add_another"
	FieldConfirm        = "confirm"
)

// NameField — ключ, под которым шаг выбора из каталога сохраняет название позиции.
func NameField(step string) string { return step + "_name" }
