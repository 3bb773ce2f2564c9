// Package locations хранит неизменяемую таблицу соответствия города и
// однобуквенного кода, которым начинаются номера заказов и партий.
package locations

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

// Entry одна строка таблицы кодов.
type Entry struct {
	Name string
	Code string
}

// defaultEntries ведётся вручную. Каждой букве A–Z соответствует ровно один город.
var defaultEntries = []Entry{
	{Name: "Новосибирск", Code: "A"},
	{Name: "Барнаул", Code: "B"},
	{Name: "Челябинск", Code: "C"},
	{Name: "Краснодар", Code: "D"},
	{Name: "Екатеринбург", Code: "E"},
	{Name: "Саратов", Code: "F"},
	{Name: "Волгоград", Code: "G"},
	{Name: "Хабаровск", Code: "H"},
	{Name: "Иркутск", Code: "I"},
	{Name: "Сургут", Code: "J"},
	{Name: "Красноярск", Code: "K"},
	{Name: "Калининград", Code: "L"},
	{Name: "Москва", Code: "M"},
	{Name: "Нижний Новгород", Code: "N"},
	{Name: "Омск", Code: "O"},
	{Name: "Пермь", Code: "P"},
	{Name: "Самара", Code: "Q"},
	{Name: "Ростов-на-Дону", Code: "R"},
	{Name: "Санкт-Петербург", Code: "S"},
	{Name: "Тюмень", Code: "T"},
	{Name: "Уфа", Code: "U"},
	{Name: "Воронеж", Code: "V"},
	{Name: "Владивосток", Code: "W"},
	{Name: "Сочи", Code: "X"},
	{Name: "Ярославль", Code: "Y"},
	{Name: "Казань", Code: "Z"},
}

// Table биекция "город ↔ код". После создания не изменяется и безопасна
// для конкурентного чтения.
type Table struct {
	byName map[string]string
	byCode map[string]string
}

// Default возвращает таблицу городов сети.
func Default() *Table {
	table, err := NewTable(defaultEntries)
	if err != nil {
		panic(fmt.Sprintf("locations: invalid default table: %v", err))
	}
	return table
}

// NewTable строит таблицу и проверяет, что соответствие взаимно однозначное,
// а код состоит из одной заглавной латинской буквы.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{
		byName: make(map[string]string, len(entries)),
		byCode: make(map[string]string, len(entries)),
	}
	for _, entry := range entries {
		name := normalize(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("empty location name for code %q", entry.Code)
		}
		if !ValidCode(entry.Code) {
			return nil, fmt.Errorf("invalid code %q for %q: want one letter A-Z", entry.Code, entry.Name)
		}
		if existing, ok := t.byName[name]; ok {
			return nil, fmt.Errorf("location %q listed twice (codes %s and %s)", name, existing, entry.Code)
		}
		if existing, ok := t.byCode[entry.Code]; ok {
			return nil, fmt.Errorf("code %s assigned to both %q and %q", entry.Code, existing, name)
		}
		t.byName[name] = entry.Code
		t.byCode[entry.Code] = name
	}
	return t, nil
}

// Code возвращает код города. Неизвестный город это ошибка конфигурации,
// кода по умолчанию нет.
func (t *Table) Code(name string) (string, error) {
	code, ok := t.byName[normalize(name)]
	if !ok {
		return "", &domain.UnknownLocationError{Name: name}
	}
	return code, nil
}

// Name возвращает город по коду.
func (t *Table) Name(code string) (string, error) {
	name, ok := t.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", &domain.UnknownLocationError{Name: code}
	}
	return name, nil
}

// Names список городов по алфавиту.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Codes список кодов по алфавиту.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.byCode))
	for code := range t.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len количество строк в таблице.
func (t *Table) Len() int {
	return len(t.byName)
}

// ValidCode проверяет формат кода: одна заглавная буква A–Z.
func ValidCode(code string) bool {
	return len(code) == 1 && code[0] >= 'A' && code[0] <= 'Z'
}

// normalize приводит имя к NFC и убирает крайние пробелы: одно и то же
// название может прийти в разных формах Unicode ("й" как одна или две кодовые точки).
func normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
