package dialog

type State string

const (
	StateIdle State = "idle"

	// Регистрация
	StateAwaitFIO State = "await_fio"

	// Терминал
	StatePosMenu     State = "pos_menu"     // главный экран терминала
	StatePosBrowse   State = "pos_browse"   // сетка товаров
	StatePosSearch   State = "pos_search"   // ожидание текстового поиска
	StatePosCart     State = "pos_cart"     // фокус на корзине/нумпаде
	StatePosCustomer State = "pos_customer" // ввод покупателя

	// Выбор серийников/партии для позиции
	StatePosSerial State = "pos_serial" // ввод серийных номеров сообщением
	StatePosBatch  State = "pos_batch"  // выбор партии кнопкой

	// После проведения
	StatePosSubmitted State = "pos_submitted"

	// Админка каталога
	StateAdmCatalogMenu   State = "adm_catalog_menu"
	StateAdmCatalogImport State = "adm_catalog_import" // ожидание Excel с товарами
)

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}
