package terrain

import "errors"

// Ошибки движка. Первые — ожидаемые доменные отказы, которые командный
// слой превращает в результат для пользователя; остальные — нарушения
// инвариантов, которые командный слой обязан был предотвратить.
var (
	// ErrLayerNotFound — слой с указанным id не существует.
	ErrLayerNotFound = errors.New("Layer not found")

	// ErrGroupNotFound — сегмент пути групп не разрешился в группу.
	ErrGroupNotFound = errors.New("Group not found")

	// ErrBaseLayerExists — в дереве уже есть базовый слой.
	ErrBaseLayerExists = errors.New("Base layer already exists: only one allowed")

	// ErrRemoveBaseLayer — базовый слой удалять нельзя.
	ErrRemoveBaseLayer = errors.New("Cannot remove the base layer")

	// ErrReorderBaseLayer — базовый слой не покидает позицию 0.
	ErrReorderBaseLayer = errors.New("Cannot reorder the base layer from position 0")

	// ErrDisplaceBaseLayer — позицию 0 занимает базовый слой.
	ErrDisplaceBaseLayer = errors.New("Cannot move a layer to position 0: reserved for the base layer")

	// ErrDuplicateID — id слоя или группы уже зарегистрирован.
	ErrDuplicateID = errors.New("Layer id already registered")

	// ErrIndexOutOfRange — индекс вне границ списка детей группы.
	ErrIndexOutOfRange = errors.New("Index out of range")

	// ErrVertexOutOfRange — индекс вершины вне карты.
	ErrVertexOutOfRange = errors.New("Vertex index out of range")

	// ErrNotInitialized — документ не инициализирован.
	ErrNotInitialized = errors.New("Document not initialized")

	// ErrRegionNotFound — в архиве нет дескриптора региона.
	ErrRegionNotFound = errors.New("Region descriptor not found")

	// ErrBaseLayerImmutable — базовый слой не принимает правок.
	ErrBaseLayerImmutable = errors.New("Cannot edit the base layer")
)
